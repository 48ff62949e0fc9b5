package checkout

import (
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

// Totals is the priced result of a cart plus an optional coupon.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
}

// ComputeTotals derives final = subtotal - discount. The discount is expected
// to already be clamped to the subtotal by the coupon validator.
func ComputeTotals(subtotal, discount decimal.Decimal) Totals {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Final:    subtotal.Sub(discount),
	}
}

// snapshotLines freezes name, price and image of each purchasable cart line.
func snapshotLines(lines []cart.Line) []models.OrderLine {
	out := make([]models.OrderLine, 0, len(lines))
	for _, line := range lines {
		if !line.Available() {
			continue
		}
		out = append(out, models.OrderLine{
			ProductID:   line.ProductID,
			ProductName: line.Product.Name,
			UnitPrice:   line.Product.Price,
			ImageURL:    line.Product.ImageURL,
			Quantity:    line.Quantity,
			LineTotal:   line.LineTotal(),
		})
	}
	return out
}
