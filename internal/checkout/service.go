package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartStore interface {
	Load(ctx context.Context, userID uuid.UUID) (*cart.View, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type couponService interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (coupons.ValidationResult, error)
	Consume(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) (*models.Coupon, error)
}

type stockDecrementer interface {
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type checkoutRecorder interface {
	Checkout(result string)
}

// Service places orders from a user's cart.
type Service interface {
	Quote(ctx context.Context, userID uuid.UUID, couponCode string) (*QuoteDTO, error)
	Place(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error)
}

// Input carries the shopper supplied part of a checkout.
type Input struct {
	CouponCode      string
	RecipientName   string
	RecipientPhone  string
	ShippingAddress string
	Note            *string
}

// QuoteDTO previews what Place would charge without writing anything.
type QuoteDTO struct {
	Totals
	Coupon         *CouponQuote     `json:"coupon,omitempty"`
	Shortfalls     []cart.Shortfall `json:"shortfalls"`
	HasUnavailable bool             `json:"has_unavailable"`
	ItemCount      int              `json:"item_count"`
}

// CouponQuote reports how the requested code evaluated against the cart.
type CouponQuote struct {
	Code    string `json:"code"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Tx      txRunner
	Cart    cartStore
	Coupons couponService
	Stock   stockDecrementer
	Orders  orders.Repository
	Outbox  outboxPublisher
	Metrics checkoutRecorder
	Logger  *logger.Logger
}

type service struct {
	tx      txRunner
	cart    cartStore
	coupons couponService
	stock   stockDecrementer
	orders  orders.Repository
	outbox  outboxPublisher
	metrics checkoutRecorder
	logg    *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock decrementer required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:      params.Tx,
		cart:    params.Cart,
		coupons: params.Coupons,
		stock:   params.Stock,
		orders:  params.Orders,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) Quote(ctx context.Context, userID uuid.UUID, couponCode string) (*QuoteDTO, error) {
	view, err := s.cart.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	quote := &QuoteDTO{
		Totals:         ComputeTotals(view.Subtotal, decimal.Zero),
		Shortfalls:     view.Shortfalls,
		HasUnavailable: len(view.Unavailable) > 0,
	}
	if quote.Shortfalls == nil {
		quote.Shortfalls = []cart.Shortfall{}
	}
	for _, line := range view.Lines {
		quote.ItemCount += line.Quantity
	}
	if code := coupons.NormalizeCode(couponCode); code != "" {
		result, err := s.coupons.Evaluate(ctx, code, view.Subtotal)
		if err != nil {
			return nil, err
		}
		quote.Coupon = &CouponQuote{Code: code, Valid: result.Valid, Message: result.Message}
		if result.Valid {
			quote.Totals = ComputeTotals(view.Subtotal, result.Discount)
		}
	}
	return quote, nil
}

// Place runs the checkout pipeline. Every check happens before the
// transaction opens; inside it stock, order, coupon and cart move together
// or not at all.
func (s *service) Place(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error) {
	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, userID.String())
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	view, err := s.cart.Load(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, metrics.CheckoutError, err)
	}
	if len(view.Lines) == 0 {
		return nil, s.fail(ctx, metrics.CheckoutEmptyCart, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
	}
	if len(view.Unavailable) > 0 {
		return nil, s.fail(ctx, metrics.CheckoutUnavailable,
			pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable products").
				WithDetails(map[string]any{"product_ids": view.Unavailable}))
	}
	if len(view.Shortfalls) > 0 {
		return nil, s.fail(ctx, metrics.CheckoutInsufficientStock,
			pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
				WithDetails(map[string]any{"shortfalls": view.Shortfalls}))
	}

	totals := ComputeTotals(view.Subtotal, decimal.Zero)
	var coupon *models.Coupon
	if code := coupons.NormalizeCode(input.CouponCode); code != "" {
		result, err := s.coupons.Evaluate(ctx, code, view.Subtotal)
		if err != nil {
			return nil, s.fail(ctx, metrics.CheckoutError, err)
		}
		if !result.Valid {
			return nil, s.fail(ctx, metrics.CheckoutCouponRejected,
				pkgerrors.New(pkgerrors.CodeValidation, result.Message).
					WithDetails(map[string]any{"code": code, "reason": result.Outcome}))
		}
		coupon = result.Coupon
		totals = ComputeTotals(view.Subtotal, result.Discount)
	}
	if !totals.Final.IsPositive() {
		return nil, s.fail(ctx, metrics.CheckoutInvalidAmount, pkgerrors.New(pkgerrors.CodeValidation, "invalid order amount"))
	}

	order := &models.Order{
		UserID:          userID,
		Status:          enums.OrderStatusPending,
		OriginalAmount:  totals.Subtotal,
		DiscountAmount:  totals.Discount,
		FinalAmount:     totals.Final,
		RecipientName:   strings.TrimSpace(input.RecipientName),
		RecipientPhone:  strings.TrimSpace(input.RecipientPhone),
		ShippingAddress: strings.TrimSpace(input.ShippingAddress),
		Note:            input.Note,
		Items:           snapshotLines(view.Lines),
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
		order.CouponCode = &coupon.Code
	}

	failure := metrics.CheckoutError
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, line := range order.Items {
			if err := s.stock.DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
					failure = metrics.CheckoutInsufficientStock
				}
				return err
			}
		}
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if coupon != nil {
			consumed, err := s.coupons.Consume(ctx, tx, coupon.ID, userID, order.ID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
					failure = metrics.CheckoutCouponRejected
				}
				return err
			}
			if err := s.emitCouponConsumed(ctx, tx, consumed, userID, order.ID); err != nil {
				return err
			}
		}
		if err := s.cart.Clear(ctx, tx, userID); err != nil {
			return err
		}
		return s.emitOrderCreated(ctx, tx, order)
	})
	if err != nil {
		return nil, s.fail(ctx, failure, err)
	}

	if s.metrics != nil {
		s.metrics.Checkout(metrics.CheckoutPlaced)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"final_amount": order.FinalAmount.StringFixed(2),
			"lines":        len(order.Items),
		})
		s.logg.Info(logCtx, "order placed")
	}
	return order, nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	lines := make([]payloads.OrderCreatedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderCreatedLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID},
		Data: payloads.OrderCreatedEvent{
			OrderID:        order.ID,
			UserID:         order.UserID,
			OriginalAmount: order.OriginalAmount,
			DiscountAmount: order.DiscountAmount,
			FinalAmount:    order.FinalAmount,
			CouponCode:     order.CouponCode,
			Lines:          lines,
			CreatedAt:      order.CreatedAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created event")
	}
	return nil
}

func (s *service) emitCouponConsumed(ctx context.Context, tx *gorm.DB, coupon *models.Coupon, userID, orderID uuid.UUID) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCouponConsumed,
		AggregateType: enums.AggregateCoupon,
		AggregateID:   coupon.ID,
		Actor:         &outbox.ActorRef{UserID: userID},
		Data: payloads.CouponConsumedEvent{
			CouponID:  coupon.ID,
			Code:      coupon.Code,
			UserID:    userID,
			OrderID:   orderID,
			UsedCount: coupon.UsedCount,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit coupon consumed event")
	}
	return nil
}

func (s *service) fail(ctx context.Context, result string, err error) error {
	if s.metrics != nil {
		s.metrics.Checkout(result)
	}
	if s.logg != nil {
		logCtx := s.logg.WithField(ctx, "checkout_result", result)
		if result == metrics.CheckoutError {
			s.logg.Error(logCtx, "checkout failed", err)
		} else {
			s.logg.Warn(logCtx, "checkout rejected")
		}
	}
	return err
}

func validateInput(input Input) error {
	missing := []string{}
	if strings.TrimSpace(input.RecipientName) == "" {
		missing = append(missing, "recipient_name")
	}
	if strings.TrimSpace(input.RecipientPhone) == "" {
		missing = append(missing, "recipient_phone")
	}
	if strings.TrimSpace(input.ShippingAddress) == "" {
		missing = append(missing, "shipping_address")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient details required").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}
