package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted once checkout commits.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID          `json:"order_id" validate:"required"`
	UserID         uuid.UUID          `json:"user_id" validate:"required"`
	OriginalAmount decimal.Decimal    `json:"original_amount"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	FinalAmount    decimal.Decimal    `json:"final_amount"`
	CouponCode     *string            `json:"coupon_code,omitempty"`
	Lines          []OrderCreatedLine `json:"lines" validate:"dive"`
	CreatedAt      time.Time          `json:"created_at"`
}

type OrderCreatedLine struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderStatusChangedEvent captures a lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID  `json:"order_id" validate:"required"`
	UserID        uuid.UUID  `json:"user_id"`
	From          string     `json:"from" validate:"required"`
	To            string     `json:"to" validate:"required"`
	PointsAwarded int        `json:"points_awarded,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
	ChangedBy     *uuid.UUID `json:"changed_by,omitempty"`
	ChangedAt     time.Time  `json:"changed_at"`
}

// CouponConsumedEvent records a coupon being applied to an order.
type CouponConsumedEvent struct {
	CouponID  uuid.UUID `json:"coupon_id" validate:"required"`
	Code      string    `json:"code" validate:"required"`
	UserID    uuid.UUID `json:"user_id"`
	OrderID   uuid.UUID `json:"order_id"`
	UsedCount int       `json:"used_count"`
}

// CouponReleasedEvent records a coupon usage being returned by a cancellation.
type CouponReleasedEvent struct {
	CouponID uuid.UUID `json:"coupon_id" validate:"required"`
	UserID   uuid.UUID `json:"user_id"`
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
}
