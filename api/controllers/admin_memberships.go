package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type createLevelRequest struct {
	Name            string          `json:"name" validate:"required,max=60"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
	MinPoints       int             `json:"min_points" validate:"min=0"`
	Color           string          `json:"color" validate:"max=32"`
	Icon            string          `json:"icon" validate:"max=64"`
}

type updateLevelRequest struct {
	Name            *string          `json:"name,omitempty" validate:"omitempty,max=60"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	MinPoints       *int             `json:"min_points,omitempty" validate:"omitempty,min=0"`
	Color           *string          `json:"color,omitempty" validate:"omitempty,max=32"`
	Icon            *string          `json:"icon,omitempty" validate:"omitempty,max=64"`
}

func AdminLevelCreate(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("membership service"))
			return
		}
		var body createLevelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level, err := svc.Create(r.Context(), memberships.LevelInput{
			Name:            validators.SanitizeString(body.Name, 60),
			DiscountPercent: body.DiscountPercent,
			MinPoints:       body.MinPoints,
			Color:           body.Color,
			Icon:            body.Icon,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, level)
	}
}

func AdminLevelUpdate(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("membership service"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "levelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateLevelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level, err := svc.Update(r.Context(), id, memberships.LevelUpdate{
			Name:            body.Name,
			DiscountPercent: body.DiscountPercent,
			MinPoints:       body.MinPoints,
			Color:           body.Color,
			Icon:            body.Icon,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, level)
	}
}

func AdminLevelDelete(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("membership service"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "levelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
