// Package middleware holds the router-level HTTP middleware.
package middleware

import (
	"net/http"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/pkg/api"
	"tickerdesk-backend/pkg/auth"
)

// Authenticate validates the bearer token and stores its claims on the
// request context. Requests without a valid token get 401.
func Authenticate(validator *auth.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := validator.ValidateToken(r.Header.Get("Authorization"))
			if err != nil {
				api.Error(w, apperrors.Unauthorized("INVALID_TOKEN", "authentication required").
					WithCause(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
