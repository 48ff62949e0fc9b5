package coupons

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponDTO is the console and wallet representation of a coupon.
type CouponDTO struct {
	ID            uuid.UUID          `json:"id"`
	Code          string             `json:"code"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	DiscountType  enums.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	MinPurchase   *decimal.Decimal   `json:"min_purchase,omitempty"`
	MaxDiscount   *decimal.Decimal   `json:"max_discount,omitempty"`
	ValidFrom     time.Time          `json:"valid_from"`
	ValidUntil    time.Time          `json:"valid_until"`
	UsageLimit    *int               `json:"usage_limit,omitempty"`
	UsedCount     int                `json:"used_count"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ClaimDTO is one entry of a user's coupon wallet.
type ClaimDTO struct {
	ID        uuid.UUID  `json:"id"`
	ClaimedAt time.Time  `json:"claimed_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
	Coupon    *CouponDTO `json:"coupon,omitempty"`
}

// ValidationDTO is the preview returned to the cart page.
type ValidationDTO struct {
	Valid    bool            `json:"valid"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Message  string          `json:"message,omitempty"`
	Coupon   *CouponDTO      `json:"coupon,omitempty"`
}

// CouponInput is the full admin payload for create and replace.
type CouponInput struct {
	Code          string
	Name          string
	Description   string
	DiscountType  enums.DiscountType
	DiscountValue decimal.Decimal
	MinPurchase   *decimal.Decimal
	MaxDiscount   *decimal.Decimal
	ValidFrom     time.Time
	ValidUntil    time.Time
	UsageLimit    *int
	IsActive      bool
}

func FromModel(c models.Coupon) CouponDTO {
	return CouponDTO{
		ID:            c.ID,
		Code:          c.Code,
		Name:          c.Name,
		Description:   c.Description,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MinPurchase:   c.MinPurchase,
		MaxDiscount:   c.MaxDiscount,
		ValidFrom:     c.ValidFrom,
		ValidUntil:    c.ValidUntil,
		UsageLimit:    c.UsageLimit,
		UsedCount:     c.UsedCount,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
	}
}

func claimFromModel(c models.UserCoupon) ClaimDTO {
	dto := ClaimDTO{
		ID:        c.ID,
		ClaimedAt: c.ClaimedAt,
		Used:      c.Used,
		UsedAt:    c.UsedAt,
		OrderID:   c.OrderID,
	}
	if c.Coupon != nil {
		coupon := FromModel(*c.Coupon)
		dto.Coupon = &coupon
	}
	return dto
}

func validationFromResult(code string, result ValidationResult) ValidationDTO {
	dto := ValidationDTO{
		Valid:    result.Valid,
		Code:     code,
		Discount: result.Discount,
		Message:  result.Message,
	}
	if result.Coupon != nil {
		coupon := FromModel(*result.Coupon)
		dto.Coupon = &coupon
	}
	return dto
}

func (in CouponInput) apply(c *models.Coupon) {
	c.Code = NormalizeCode(in.Code)
	c.Name = in.Name
	c.Description = in.Description
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.MinPurchase = in.MinPurchase
	c.MaxDiscount = in.MaxDiscount
	c.ValidFrom = in.ValidFrom.UTC()
	c.ValidUntil = in.ValidUntil.UTC()
	c.UsageLimit = in.UsageLimit
	c.IsActive = in.IsActive
}
