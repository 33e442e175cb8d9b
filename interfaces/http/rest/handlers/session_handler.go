package handlers

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/session"
	"tickerdesk-backend/pkg/api"
)

// SessionHandler serves the session endpoints. Sign-in and sign-out are
// unauthenticated routes; info and refresh sit behind the auth middleware.
type SessionHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

// NewSessionHandler builds the handler.
func NewSessionHandler(manager *session.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Email == "" || in.Password == "" {
		api.Error(w, apperrors.Validation("MISSING_CREDENTIALS", "email and password are required"))
		return
	}
	if err := h.manager.SignIn(r.Context(), in.Email, in.Password); err != nil {
		api.Error(w, apperrors.Classify(err))
		return
	}
	api.Success(w, http.StatusOK, h.manager.GetSessionInfo())
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.SignOut(r.Context()); err != nil {
		api.Error(w, apperrors.Classify(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Info reports the session state without side effects.
func (h *SessionHandler) Info(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.manager.GetSessionInfo())
}

// Refresh forces a token refresh. Concurrent calls join the in-flight
// refresh rather than issuing additional network calls.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.manager.RefreshToken(r.Context()) {
		api.Error(w, apperrors.Unauthorized("REFRESH_FAILED", "session could not be refreshed"))
		return
	}
	api.Success(w, http.StatusOK, h.manager.GetSessionInfo())
}
