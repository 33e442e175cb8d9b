package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/service/watchlist"
	"tickerdesk-backend/pkg/api"
)

// WatchlistHandler serves the watchlist endpoints.
type WatchlistHandler struct {
	service *watchlist.Service
	logger  *zap.Logger
}

// NewWatchlistHandler builds the handler.
func NewWatchlistHandler(service *watchlist.Service, logger *zap.Logger) *WatchlistHandler {
	return &WatchlistHandler{service: service, logger: logger}
}

func (h *WatchlistHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in watchlist.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusCreated, h.service.Create(r.Context(), userID, in))
}

func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	api.WriteResult(w, http.StatusOK, h.service.List(r.Context(), userID))
}

func (h *WatchlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.Get(r.Context(), userID, chi.URLParam(r, "watchlistID")))
}

func (h *WatchlistHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in watchlist.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.Update(r.Context(), userID, chi.URLParam(r, "watchlistID"), in))
}

func (h *WatchlistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res := h.service.Delete(r.Context(), userID, chi.URLParam(r, "watchlistID"))
	if res.IsError() {
		api.Error(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WatchlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in watchlist.AddItemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusCreated,
		h.service.AddItem(r.Context(), userID, chi.URLParam(r, "watchlistID"), in))
}

func (h *WatchlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res := h.service.RemoveItem(r.Context(), userID,
		chi.URLParam(r, "watchlistID"), chi.URLParam(r, "itemID"))
	if res.IsError() {
		api.Error(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WatchlistHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Position *int `json:"position"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Position == nil {
		api.Error(w, apperrors.Validation("INVALID_POSITION", "position is required"))
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.MoveItem(r.Context(), userID,
			chi.URLParam(r, "watchlistID"), chi.URLParam(r, "itemID"), *body.Position))
}

func (h *WatchlistHandler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.ListCollaborators(r.Context(), userID, chi.URLParam(r, "watchlistID")))
}

func (h *WatchlistHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in watchlist.CollaboratorInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusCreated,
		h.service.AddCollaborator(r.Context(), userID, chi.URLParam(r, "watchlistID"), in))
}

func (h *WatchlistHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res := h.service.RemoveCollaborator(r.Context(), userID,
		chi.URLParam(r, "watchlistID"), chi.URLParam(r, "collaboratorID"))
	if res.IsError() {
		api.Error(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
