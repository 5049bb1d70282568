package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/handlers/render"
	"github.com/nkiryanov/brokeroffice/internal/handlers/userctx"
	"github.com/nkiryanov/brokeroffice/internal/models"
)

type authenticator interface {
	GetAccessString(r *http.Request) (string, error)

	// Must return apperrors.ErrTokenInvalid or apperrors.ErrTokenRevoked if token is not accepted
	Authenticate(ctx context.Context, access string) (models.AccessClaims, error)
}

// AuthMiddleware lets through requests with valid, not revoked bearer token
// and puts its claims into request context
func AuthMiddleware(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, err := a.GetAccessString(r)
			if err != nil {
				render.Failure(w, render.ActionAuthenticated, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := a.Authenticate(r.Context(), access)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrTokenRevoked):
				render.Failure(w, render.ActionAuthenticated, "Unauthorized", http.StatusUnauthorized)
				return
			default:
				render.Failure(w, render.ActionAuthenticated, "Internal server error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), claims)))
		})
	}
}

// RoleMiddleware allows only listed roles. Has to be placed after AuthMiddleware
func RoleMiddleware(roles ...int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := userctx.FromContext(r.Context())
			if !ok {
				render.Failure(w, render.ActionAuthenticated, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !slices.Contains(roles, claims.RoleID) {
				render.Failure(w, render.ActionAuthenticated, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
