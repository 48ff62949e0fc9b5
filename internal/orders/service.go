package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const defaultPointsSpendUnit = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockRestorer returns units to a product when an order is cancelled.
type StockRestorer interface {
	RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// CouponReleaser hands a coupon use back when an order is cancelled.
type CouponReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) error
}

// LoyaltyWriter moves a user's points and spend and re-resolves their tier.
type LoyaltyWriter interface {
	AddPoints(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int, spent decimal.Decimal) (*models.User, error)
}

type transitionRecorder interface {
	OrderTransition(from, to string)
}

// Service defines order reads and lifecycle transitions.
type Service interface {
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[OrderDTO], error)
	GetMine(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	CancelMine(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) (pagination.Page[OrderDTO], error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*OrderDTO, error)
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// StatusInput captures an admin-driven transition.
type StatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	ActorID *uuid.UUID
	Reason  *string
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Stock     StockRestorer
	Coupons   CouponReleaser
	Loyalty   LoyaltyWriter
	Metrics   transitionRecorder
	Logger    *logger.Logger
	SpendUnit int
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	stock     StockRestorer
	coupons   CouponReleaser
	loyalty   LoyaltyWriter
	metrics   transitionRecorder
	logg      *logger.Logger
	spendUnit decimal.Decimal
	now       func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon releaser required")
	}
	if params.Loyalty == nil {
		return nil, fmt.Errorf("loyalty writer required")
	}
	unit := params.SpendUnit
	if unit <= 0 {
		unit = defaultPointsSpendUnit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		stock:     params.Stock,
		coupons:   params.Coupons,
		loyalty:   params.Loyalty,
		metrics:   params.Metrics,
		logg:      params.Logger,
		spendUnit: decimal.NewFromInt(int64(unit)),
		now:       func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[OrderDTO], error) {
	if err := checkCursor(params); err != nil {
		return pagination.Page[OrderDTO]{}, err
	}
	rows, err := s.repo.List(ctx, ListFilter{UserID: &userID, Page: params})
	if err != nil {
		return pagination.Page[OrderDTO]{}, listError(err)
	}
	return pageFromModels(rows, params.Limit), nil
}

// GetMine returns the order only when it belongs to userID; other users'
// orders read as not found.
func (s *service) GetMine(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.lookupError(ctx, orderID, err)
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := FromModel(order)
	return &dto, nil
}

// CancelMine lets a shopper cancel their own order while it is still pending.
func (s *service) CancelMine(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	var result *models.Order
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return s.lookupError(ctx, orderID, err)
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "only pending orders can be cancelled; order is %s", order.Status)
		}
		from = order.Status
		result, err = s.transition(ctx, tx, order, enums.OrderStatusCancelled, &userID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(from, enums.OrderStatusCancelled)
	dto := FromModel(result)
	return &dto, nil
}

func (s *service) List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) (pagination.Page[OrderDTO], error) {
	if err := checkCursor(params); err != nil {
		return pagination.Page[OrderDTO]{}, err
	}
	rows, err := s.repo.List(ctx, ListFilter{Status: status, Page: params})
	if err != nil {
		return pagination.Page[OrderDTO]{}, listError(err)
	}
	return pageFromModels(rows, params.Limit), nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.lookupError(ctx, orderID, err)
	}
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", input.Status)
	}
	var result *models.Order
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return s.lookupError(ctx, input.OrderID, err)
		}
		from = order.Status
		result, err = s.transition(ctx, tx, order, input.Status, input.ActorID, input.Reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(from, input.Status)
	dto := FromModel(result)
	return &dto, nil
}

// ExpirePending cancels every order that has been pending longer than
// olderThan. Each order is cancelled in its own transaction; failures are
// collected and the rest still run.
func (s *service) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stale, err := s.repo.FindPendingBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	reason := "pending order expired"
	expired := 0
	var errs error
	for _, candidate := range stale {
		id := candidate.ID
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if order.Status != enums.OrderStatusPending {
				return nil
			}
			_, err = s.transition(ctx, tx, order, enums.OrderStatusCancelled, nil, &reason)
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		s.recordTransition(enums.OrderStatusPending, enums.OrderStatusCancelled)
		expired++
	}
	return expired, errs
}

// transition moves order to next inside tx and applies the side effects of
// the target status.
func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, actor *uuid.UUID, reason *string) (*models.Order, error) {
	from := order.Status
	if !from.CanTransitionTo(next) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, next).
			WithDetails(map[string]any{"from": from, "to": next})
	}

	now := s.now()
	updates := map[string]any{"status": next, "updated_at": now}
	switch next {
	case enums.OrderStatusPaid:
		points := int(order.FinalAmount.Div(s.spendUnit).Floor().IntPart())
		if _, err := s.loyalty.AddPoints(ctx, tx, order.UserID, points, order.FinalAmount); err != nil {
			return nil, err
		}
		updates["paid_at"] = now
		updates["points_awarded"] = points
		order.PaidAt = &now
		order.PointsAwarded = points
	case enums.OrderStatusCancelled:
		if err := s.unwind(ctx, tx, order); err != nil {
			return nil, err
		}
		updates["cancelled_at"] = now
		order.CancelledAt = &now
	}

	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	order.Status = next
	order.UpdatedAt = now

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			From:          from.String(),
			To:            next.String(),
			PointsAwarded: order.PointsAwarded,
			Reason:        reason,
			ChangedBy:     actor,
			ChangedAt:     now,
		},
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{UserID: *actor}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"from": from,
			"to":   next,
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return order, nil
}

// unwind reverses what checkout and payment did: stock goes back, the coupon
// use is released and, for a paid order, the awarded points and spend are
// taken back.
func (s *service) unwind(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	for _, item := range order.Items {
		if err := s.stock.RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	if order.CouponID != nil {
		if err := s.coupons.Release(ctx, tx, *order.CouponID, order.UserID, order.ID); err != nil {
			return err
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCouponReleased,
			AggregateType: enums.AggregateCoupon,
			AggregateID:   *order.CouponID,
			Data: payloads.CouponReleasedEvent{
				CouponID: *order.CouponID,
				UserID:   order.UserID,
				OrderID:  order.ID,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit coupon released event")
		}
	}
	if order.Status == enums.OrderStatusPaid {
		if _, err := s.loyalty.AddPoints(ctx, tx, order.UserID, -order.PointsAwarded, order.FinalAmount.Neg()); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) recordTransition(from, to enums.OrderStatus) {
	if s.metrics != nil {
		s.metrics.OrderTransition(from.String(), to.String())
	}
}

func (s *service) lookupError(ctx context.Context, id uuid.UUID, err error) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	if db.IsNotFound(err) {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithOrderID(ctx, id.String()), "order not found")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func checkCursor(params pagination.Params) error {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}

func listError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
}
