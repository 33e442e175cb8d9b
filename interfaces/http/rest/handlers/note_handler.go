package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tickerdesk-backend/internal/service/note"
	"tickerdesk-backend/pkg/api"
)

// NoteHandler serves the note endpoints.
type NoteHandler struct {
	service *note.Service
	logger  *zap.Logger
}

// NewNoteHandler builds the handler.
func NewNoteHandler(service *note.Service, logger *zap.Logger) *NoteHandler {
	return &NoteHandler{service: service, logger: logger}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in note.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusCreated, h.service.Create(r.Context(), userID, in))
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	api.WriteResult(w, http.StatusOK, h.service.List(r.Context(), userID))
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.Get(r.Context(), userID, chi.URLParam(r, "noteID")))
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in note.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.Update(r.Context(), userID, chi.URLParam(r, "noteID"), in))
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res := h.service.Delete(r.Context(), userID, chi.URLParam(r, "noteID"))
	if res.IsError() {
		api.Error(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	api.WriteResult(w, http.StatusOK,
		h.service.ListCollaborators(r.Context(), userID, chi.URLParam(r, "noteID")))
}

func (h *NoteHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var in note.CollaboratorInput
	if !decodeJSON(w, r, &in) {
		return
	}
	api.WriteResult(w, http.StatusCreated,
		h.service.AddCollaborator(r.Context(), userID, chi.URLParam(r, "noteID"), in))
}

func (h *NoteHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res := h.service.RemoveCollaborator(r.Context(), userID,
		chi.URLParam(r, "noteID"), chi.URLParam(r, "collaboratorID"))
	if res.IsError() {
		api.Error(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
