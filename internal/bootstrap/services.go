// Package bootstrap wires repositories and services shared by the binaries.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/deadletters"
	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/auth/hqpass"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Services is the full domain graph.
type Services struct {
	Sessions    *session.Manager
	Passes      *hqpass.Issuer
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
	Auth        auth.Service
	Users       users.Service
	Memberships memberships.Service
	Products    products.Service
	Cart        cart.Service
	Coupons     coupons.Service
	Checkout    checkout.Service
	Orders      orders.Service
	DeadLetters deadletters.Service
}

// NewServices builds every service against one database and redis client.
// reg may be nil, in which case pipeline metrics are not collected.
func NewServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || dbClient == nil || redisClient == nil {
		return nil, fmt.Errorf("config, database and redis are required")
	}
	conn := dbClient.DB()
	storefrontMetrics := metrics.NewStorefront(reg)

	sessions, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	passes, err := hqpass.NewIssuer(redisClient, cfg.Headquarters.BypassTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("headquarters issuer: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	membershipSvc, err := memberships.NewService(memberships.NewRepository(conn), dbClient, logg)
	if err != nil {
		return nil, fmt.Errorf("membership service: %w", err)
	}
	userRepo := users.NewRepository(conn)
	userSvc, err := users.NewService(userRepo, dbClient, membershipSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("user service: %w", err)
	}
	productSvc, err := products.NewService(products.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}
	cartSvc, err := cart.NewService(cart.NewRepository(conn), dbClient, productSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo:    coupons.NewRepository(conn),
		Limiter: coupons.NewLimiter(cfg.Coupons.ValidateRatePerSecond, cfg.Coupons.ValidateBurst),
		Metrics: storefrontMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("coupon service: %w", err)
	}
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Stock:     productSvc,
		Coupons:   couponSvc,
		Loyalty:   userSvc,
		Metrics:   storefrontMetrics,
		Logger:    logg,
		SpendUnit: cfg.Checkout.PointsSpendUnit,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:      dbClient,
		Cart:    cartSvc,
		Coupons: couponSvc,
		Stock:   productSvc,
		Orders:  orderRepo,
		Outbox:  outboxSvc,
		Metrics: storefrontMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	deadLetterSvc, err := deadletters.NewService(outbox.NewDeadLetterRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("dead letter service: %w", err)
	}
	authSvc, err := auth.NewService(auth.ServiceParams{
		Users:          userRepo,
		Profiles:       userSvc,
		Sessions:       sessions,
		Passes:         passes,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Headquarters:   cfg.Headquarters,
		Logger:         logg,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	return &Services{
		Sessions:    sessions,
		Passes:      passes,
		Outbox:      outboxSvc,
		OutboxRepo:  outboxRepo,
		Auth:        authSvc,
		Users:       userSvc,
		Memberships: membershipSvc,
		Products:    productSvc,
		Cart:        cartSvc,
		Coupons:     couponSvc,
		Checkout:    checkoutSvc,
		Orders:      orderSvc,
		DeadLetters: deadLetterSvc,
	}, nil
}
