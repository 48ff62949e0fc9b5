package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderDTO is the API view of an order.
type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	Status          enums.OrderStatus `json:"status"`
	OriginalAmount  decimal.Decimal   `json:"original_amount"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	FinalAmount     decimal.Decimal   `json:"final_amount"`
	CouponCode      *string           `json:"coupon_code,omitempty"`
	RecipientName   string            `json:"recipient_name"`
	RecipientPhone  string            `json:"recipient_phone"`
	ShippingAddress string            `json:"shipping_address"`
	Note            *string           `json:"note,omitempty"`
	PointsAwarded   int               `json:"points_awarded"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Items           []LineDTO         `json:"items"`
}

// LineDTO is a frozen line snapshot.
type LineDTO struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ImageURL    string          `json:"image_url,omitempty"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// FromModel maps an order row, including loaded lines, to its DTO.
func FromModel(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		OriginalAmount:  order.OriginalAmount,
		DiscountAmount:  order.DiscountAmount,
		FinalAmount:     order.FinalAmount,
		CouponCode:      order.CouponCode,
		RecipientName:   order.RecipientName,
		RecipientPhone:  order.RecipientPhone,
		ShippingAddress: order.ShippingAddress,
		Note:            order.Note,
		PointsAwarded:   order.PointsAwarded,
		PaidAt:          order.PaidAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		Items:           make([]LineDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, LineDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			ImageURL:    item.ImageURL,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	return dto
}

func pageFromModels(rows []models.Order, limit int) pagination.Page[OrderDTO] {
	page := pagination.Build(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := pagination.Page[OrderDTO]{Items: make([]OrderDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Items = append(out.Items, FromModel(&page.Items[i]))
	}
	return out
}
