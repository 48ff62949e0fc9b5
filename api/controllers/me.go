package controllers

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type meResponse struct {
	*users.UserDTO
	Level *memberships.LevelDTO `json:"level,omitempty"`
}

// Me returns the caller's profile with its resolved membership level.
func Me(userSvc users.Service, levelSvc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userSvc == nil || levelSvc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("profile service"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := userSvc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := meResponse{UserDTO: profile}
		if profile.MembershipLevelID != nil {
			level, err := levelSvc.Get(r.Context(), *profile.MembershipLevelID)
			switch {
			case err == nil:
				resp.Level = level
			case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "membership_level_id", profile.MembershipLevelID.String()), "membership level missing for profile")
				}
			default:
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if resp.Level == nil {
			// shown on the lowest level until the next points write re-resolves it
			resp.Level, err = lowestLevel(r, levelSvc)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, resp)
	}
}

func lowestLevel(r *http.Request, levelSvc memberships.Service) (*memberships.LevelDTO, error) {
	levels, err := levelSvc.List(r.Context())
	if err != nil || len(levels) == 0 {
		return nil, err
	}
	lowest := slices.MinFunc(levels, func(a, b memberships.LevelDTO) int { return a.MinPoints - b.MinPoints })
	return &lowest, nil
}
