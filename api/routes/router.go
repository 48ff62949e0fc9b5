package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
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
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Store is the redis surface shared by idempotency and rate limiting.
type Store interface {
	middleware.ReplayStore
	middleware.CounterStore
}

// Params bundles everything the router hands to middleware and controllers.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    Store
	Sessions session.AccessSessionChecker
	Passes   hqpass.Checker
	Gatherer prometheus.Gatherer
	Pingers  map[string]controllers.Pinger
	Now      func() time.Time
	// HTTPMetrics may be nil; requests are then only logged.
	HTTPMetrics *metrics.HTTP

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

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	limits := cfg.AuthRateLimit
	loginThrottle := middleware.NewThrottle("login", limits.LoginWindow).
		PerIP(limits.LoginIPLimit).
		PerEmail(limits.LoginEmailLimit)
	registerThrottle := middleware.NewThrottle("register", limits.RegisterWindow).
		PerIP(limits.RegisterIPLimit).
		PerEmail(limits.RegisterEmailLimit)
	hqThrottle := middleware.NewThrottle("headquarters", limits.HeadquartersWindow).
		PerIP(limits.HeadquartersLimit).
		PerSession(limits.HeadquartersLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.Throttled(registerThrottle, p.Store, logg)).Post("/register", controllers.AuthRegister(p.Auth, logg))
		r.With(middleware.Throttled(loginThrottle, p.Store, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(p.Auth, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Get("/me", controllers.Me(p.Users, p.Memberships, logg))
		r.Get("/memberships", controllers.MembershipLevels(p.Memberships, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(p.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(p.Products, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(p.Cart, logg))
			r.Post("/items", controllers.CartAddItem(p.Cart, logg))
			r.Patch("/items/{productId}", controllers.CartUpdateItem(p.Cart, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(p.Cart, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/validate", controllers.CouponValidate(p.Coupons, p.Cart, logg))
			r.Post("/claim", controllers.CouponClaim(p.Coupons, logg))
			r.Get("/mine", controllers.CouponsMine(p.Coupons, logg))
		})

		r.Post("/checkout", controllers.Checkout(p.Checkout, logg))
		r.Post("/checkout/quote", controllers.CheckoutQuote(p.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(p.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(p.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(p.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))

		r.With(middleware.Throttled(hqThrottle, p.Store, logg)).Post("/headquarters", controllers.Headquarters(p.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(p.Users, p.Passes, logg))
			r.Use(middleware.Idempotency(p.Store, logg))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", controllers.AdminProductList(p.Products, logg))
				r.Post("/", controllers.AdminProductCreate(p.Products, logg))
				r.Get("/{productId}", controllers.AdminProductDetail(p.Products, logg))
				r.Patch("/{productId}", controllers.AdminProductUpdate(p.Products, logg))
				r.Delete("/{productId}", controllers.AdminProductDelete(p.Products, logg))
			})

			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", controllers.AdminCouponList(p.Coupons, logg))
				r.Post("/", controllers.AdminCouponCreate(p.Coupons, logg))
				r.Get("/{couponId}", controllers.AdminCouponDetail(p.Coupons, logg))
				r.Put("/{couponId}", controllers.AdminCouponReplace(p.Coupons, logg))
				r.Patch("/{couponId}/active", controllers.AdminCouponSetActive(p.Coupons, logg))
				r.Delete("/{couponId}", controllers.AdminCouponDelete(p.Coupons, logg))
			})

			r.Route("/memberships", func(r chi.Router) {
				r.Get("/", controllers.MembershipLevels(p.Memberships, logg))
				r.Post("/", controllers.AdminLevelCreate(p.Memberships, logg))
				r.Patch("/{levelId}", controllers.AdminLevelUpdate(p.Memberships, logg))
				r.Delete("/{levelId}", controllers.AdminLevelDelete(p.Memberships, logg))
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", controllers.AdminUserList(p.Users, logg))
				r.Get("/{userId}", controllers.AdminUserDetail(p.Users, logg))
				r.Patch("/{userId}/role", controllers.AdminUserSetRole(p.Users, logg))
				r.Patch("/{userId}/points", controllers.AdminUserSetPoints(p.Users, logg))
				r.Delete("/{userId}", controllers.AdminUserDelete(p.Users, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminOrderList(p.Orders, logg))
				r.Get("/{orderId}", controllers.AdminOrderDetail(p.Orders, logg))
				r.Patch("/{orderId}/status", controllers.AdminOrderUpdateStatus(p.Orders, logg))
			})

			r.Route("/outbox/dead-letters", func(r chi.Router) {
				r.Get("/", controllers.AdminDeadLetterList(p.DeadLetters, logg))
				r.Post("/{deadLetterId}/requeue", controllers.AdminDeadLetterRequeue(p.DeadLetters, logg))
			})

			r.Post("/media/paths", controllers.AdminMediaPath(p.Now, logg))
		})
	})

	return r
}
