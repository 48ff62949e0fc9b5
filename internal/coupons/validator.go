package coupons

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Outcome labels a validation decision; it doubles as the metrics label.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeInactive    Outcome = "inactive"
	OutcomeNotYetValid Outcome = "not_yet_valid"
	OutcomeExpired     Outcome = "expired"
	OutcomeUsageLimit  Outcome = "usage_limit"
	OutcomeMinPurchase Outcome = "min_purchase"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ValidationResult is the answer to "may this code apply to this subtotal".
type ValidationResult struct {
	Valid    bool
	Outcome  Outcome
	Coupon   *models.Coupon
	Discount decimal.Decimal
	Message  string
}

// NormalizeCode trims and uppercases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NotFound is the result for a code with no matching coupon.
func NotFound() ValidationResult {
	return reject(OutcomeNotFound, "coupon not found")
}

// Validate decides whether coupon applies to subtotal at now and computes the
// discount. It never mutates coupon. Checks run in a fixed order and the
// first failing one wins.
func Validate(coupon *models.Coupon, subtotal decimal.Decimal, now time.Time) ValidationResult {
	if coupon == nil {
		return NotFound()
	}
	if !coupon.IsActive {
		return reject(OutcomeInactive, "coupon is inactive")
	}
	if now.Before(coupon.ValidFrom) {
		return reject(OutcomeNotYetValid, "coupon is not yet valid")
	}
	if now.After(coupon.ValidUntil) {
		return reject(OutcomeExpired, "coupon has expired")
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return reject(OutcomeUsageLimit, "usage limit reached")
	}
	if coupon.MinPurchase != nil && subtotal.LessThan(*coupon.MinPurchase) {
		return reject(OutcomeMinPurchase, fmt.Sprintf("minimum purchase of %s required", coupon.MinPurchase.StringFixed(moneyPlaces)))
	}

	return ValidationResult{
		Valid:    true,
		Outcome:  OutcomeValid,
		Coupon:   coupon,
		Discount: Discount(coupon, subtotal),
	}
}

// Discount computes the amount taken off subtotal, capped for percentage
// coupons and never larger than subtotal itself.
func Discount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = subtotal.Mul(coupon.DiscountValue).Div(hundred)
		if coupon.MaxDiscount != nil && discount.GreaterThan(*coupon.MaxDiscount) {
			discount = *coupon.MaxDiscount
		}
	case enums.DiscountTypeFixed:
		discount = coupon.DiscountValue
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(moneyPlaces)
}

func reject(outcome Outcome, message string) ValidationResult {
	return ValidationResult{Outcome: outcome, Discount: decimal.Zero, Message: message}
}
