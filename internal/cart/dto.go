package cart

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineDTO is one cart row as shown on the cart page.
type LineDTO struct {
	ProductID uuid.UUID               `json:"product_id"`
	Quantity  int                     `json:"quantity"`
	Available bool                    `json:"available"`
	Name      string                  `json:"name,omitempty"`
	ImageURL  string                  `json:"image_url,omitempty"`
	UnitPrice *decimal.Decimal        `json:"unit_price,omitempty"`
	Stock     *int                    `json:"stock,omitempty"`
	LineTotal decimal.Decimal         `json:"line_total"`
	Warnings  []enums.CartLineWarning `json:"warnings,omitempty"`
	AddedAt   time.Time               `json:"added_at"`
}

// ViewDTO is the hydrated cart.
type ViewDTO struct {
	Lines          []LineDTO       `json:"lines"`
	ItemCount      int             `json:"item_count"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	HasUnavailable bool            `json:"has_unavailable"`
	Shortfalls     []Shortfall     `json:"shortfalls"`
}

// MutationDTO is returned by add and update; Warning is set when the
// requested quantity was clamped to stock.
type MutationDTO struct {
	ProductID uuid.UUID              `json:"product_id"`
	Quantity  int                    `json:"quantity"`
	Warning   *enums.CartLineWarning `json:"warning,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

func lineToDTO(line Line) LineDTO {
	dto := LineDTO{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Available: line.Available(),
		LineTotal: line.LineTotal(),
		Warnings:  line.Warnings(),
		AddedAt:   line.AddedAt,
	}
	if line.Product != nil {
		price := line.Product.Price
		stock := line.Product.Stock
		dto.Name = line.Product.Name
		dto.ImageURL = line.Product.ImageURL
		dto.UnitPrice = &price
		dto.Stock = &stock
	}
	return dto
}

func viewToDTO(view *View) ViewDTO {
	dto := ViewDTO{
		Lines:          make([]LineDTO, 0, len(view.Lines)),
		Subtotal:       view.Subtotal,
		HasUnavailable: len(view.Unavailable) > 0,
		Shortfalls:     view.Shortfalls,
	}
	if dto.Shortfalls == nil {
		dto.Shortfalls = []Shortfall{}
	}
	for _, line := range view.Lines {
		dto.Lines = append(dto.Lines, lineToDTO(line))
		dto.ItemCount += line.Quantity
	}
	return dto
}
