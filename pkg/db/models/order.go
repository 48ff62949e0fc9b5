package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is a placed purchase. FinalAmount = OriginalAmount - DiscountAmount.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	OriginalAmount  decimal.Decimal   `gorm:"column:original_amount;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal   `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	FinalAmount     decimal.Decimal   `gorm:"column:final_amount;type:numeric(12,2);not null"`
	CouponID        *uuid.UUID        `gorm:"column:coupon_id;type:uuid"`
	CouponCode      *string           `gorm:"column:coupon_code"`
	RecipientName   string            `gorm:"column:recipient_name;not null"`
	RecipientPhone  string            `gorm:"column:recipient_phone;not null"`
	ShippingAddress string            `gorm:"column:shipping_address;not null"`
	Note            *string           `gorm:"column:note"`
	PointsAwarded   int               `gorm:"column:points_awarded;not null;default:0"`
	PaidAt          *time.Time        `gorm:"column:paid_at"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	Items           []OrderLine       `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderLine is a frozen snapshot of a product at purchase time.
type OrderLine struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	ImageURL    string          `gorm:"column:image_url"`
	Quantity    int             `gorm:"column:quantity;not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
