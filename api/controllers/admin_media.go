package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/storage/objectpath"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type mediaPathRequest struct {
	Purpose  string `json:"purpose" validate:"required"`
	Filename string `json:"filename" validate:"required,max=255"`
}

type mediaPathResponse struct {
	Purpose string `json:"purpose"`
	Path    string `json:"path"`
}

// AdminMediaPath reserves an object name for the console to upload into.
func AdminMediaPath(now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body mediaPathRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purpose := objectpath.Purpose(body.Purpose)
		if !purpose.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown image purpose").
				WithDetails(map[string]any{"purpose": body.Purpose}))
			return
		}
		path, err := objectpath.Build(purpose, body.Filename, now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build object path"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mediaPathResponse{Purpose: string(purpose), Path: path})
	}
}
