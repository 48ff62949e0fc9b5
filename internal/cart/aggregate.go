package cart

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is a cart entry joined with its product. Product is nil when the
// product no longer exists; such lines contribute nothing to the subtotal.
type Line struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Product   *models.Product
	AddedAt   time.Time
}

// Available reports whether the line can be purchased at all.
func (l Line) Available() bool {
	return l.Product != nil && l.Product.IsActive
}

// LineTotal is price times quantity for available lines, zero otherwise.
func (l Line) LineTotal() decimal.Decimal {
	if !l.Available() {
		return decimal.Zero
	}
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Warnings lists the problems checkout would raise for the line.
func (l Line) Warnings() []enums.CartLineWarning {
	switch {
	case !l.Available():
		return []enums.CartLineWarning{enums.CartLineWarningNotAvailable}
	case l.Quantity > l.Product.Stock:
		return []enums.CartLineWarning{enums.CartLineWarningInsufficientStock}
	}
	return nil
}

// Shortfall describes a line asking for more than the product has in stock.
type Shortfall struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Hydrate joins raw cart rows with a product lookup, preserving row order.
func Hydrate(rows []models.CartItem, products map[uuid.UUID]models.Product) []Line {
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		line := Line{ID: row.ID, ProductID: row.ProductID, Quantity: row.Quantity, AddedAt: row.CreatedAt}
		if product, ok := products[row.ProductID]; ok {
			p := product
			line.Product = &p
		}
		lines = append(lines, line)
	}
	return lines
}

// Subtotal sums price times quantity over every available line.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// StockShortfalls returns every available line whose quantity exceeds stock.
func StockShortfalls(lines []Line) []Shortfall {
	var out []Shortfall
	for _, line := range lines {
		if !line.Available() || line.Quantity <= line.Product.Stock {
			continue
		}
		out = append(out, Shortfall{
			ProductID: line.ProductID,
			Name:      line.Product.Name,
			Requested: line.Quantity,
			Available: line.Product.Stock,
		})
	}
	return out
}

// Unavailable returns the product ids of lines that cannot be purchased.
func Unavailable(lines []Line) []uuid.UUID {
	var out []uuid.UUID
	for _, line := range lines {
		if !line.Available() {
			out = append(out, line.ProductID)
		}
	}
	return out
}
