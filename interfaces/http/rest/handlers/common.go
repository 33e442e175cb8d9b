// Package handlers implements the REST endpoints. Handlers stay thin:
// decode, delegate to a service, write the Result.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/pkg/api"
	"tickerdesk-backend/pkg/auth"
)

// decodeJSON reads the request body into v; a malformed body is a
// validation error, not a server error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.Error(w, apperrors.Validation("MALFORMED_BODY", "request body is not valid JSON").
			WithCause(err))
		return false
	}
	return true
}

// callerID returns the authenticated user's id, or writes 401 and returns
// false. The auth middleware normally guarantees claims are present.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := auth.ClaimsFrom(r.Context())
	if claims == nil {
		api.Error(w, apperrors.Unauthorized("NO_CLAIMS", "authentication required"))
		return "", false
	}
	return claims.UserID(), true
}
