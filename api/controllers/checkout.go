package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type checkoutRequest struct {
	CouponCode      string  `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
	RecipientName   string  `json:"recipient_name" validate:"required,max=120"`
	RecipientPhone  string  `json:"recipient_phone" validate:"required,max=32"`
	ShippingAddress string  `json:"shipping_address" validate:"required,max=500"`
	Note            *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type quoteRequest struct {
	CouponCode string `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}

func (c checkoutRequest) toInput() checkout.Input {
	input := checkout.Input{
		CouponCode:      validators.SanitizeString(c.CouponCode, 64),
		RecipientName:   validators.SanitizeString(c.RecipientName, 120),
		RecipientPhone:  validators.SanitizeString(c.RecipientPhone, 32),
		ShippingAddress: validators.SanitizeString(c.ShippingAddress, 500),
	}
	if c.Note != nil {
		note := validators.SanitizeString(*c.Note, 1000)
		if note != "" {
			input.Note = &note
		}
	}
	return input
}

// Checkout places an order from the caller's cart.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("checkout service"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Place(r.Context(), userID, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.FromModel(order))
	}
}

// CheckoutQuote previews totals for the caller's cart without writing.
func CheckoutQuote(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("checkout service"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body quoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Quote(r.Context(), userID, body.CouponCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
