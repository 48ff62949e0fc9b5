package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/auth/hqpass"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
)

// HQPassHeader carries the headquarters bypass token id.
const HQPassHeader = "X-HQ-Pass"

// RoleSource reads the role currently stored on a profile.
type RoleSource interface {
	CurrentRole(ctx context.Context, id uuid.UUID) (enums.UserRole, error)
}

// RequireAdmin admits the request when the caller's stored profile role is
// admin, or when X-HQ-Pass names a live bypass token issued to the caller's
// session. The access token's role claim is ignored; the stored role is read
// on every request. The two grants are evaluated independently; neither
// implies the other.
func RequireAdmin(roles RoleSource, passes hqpass.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			admin, err := hasAdminRole(ctx, roles)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load caller role"))
				return
			}
			if admin {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := hasBypass(ctx, passes, r.Header.Get(HQPassHeader))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check headquarters pass"))
				return
			}
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}

			ctx = context.WithValue(ctx, ctxHQBypass, true)
			if logg != nil {
				ctx = logg.WithField(ctx, "hq_bypass", true)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasAdminRole(ctx context.Context, roles RoleSource) (bool, error) {
	if roles == nil {
		return false, nil
	}
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return false, nil
	}
	role, err := roles.CurrentRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == enums.UserRoleAdmin, nil
}

func hasBypass(ctx context.Context, passes hqpass.Checker, header string) (bool, error) {
	tokenID := strings.TrimSpace(header)
	sessionID := SessionIDFromContext(ctx)
	if passes == nil || tokenID == "" || sessionID == "" {
		return false, nil
	}
	return passes.Check(ctx, sessionID, tokenID)
}
