// Package api defines the HTTP response contract: every endpoint returns
// the same envelope, mapped from the engine's Result statuses.
package api

import (
	"encoding/json"
	"net/http"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/result"
)

// Envelope is the wire shape of every response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorBody     `json:"error,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// ErrorBody carries the taxonomy fields to the client.
type ErrorBody struct {
	Status  string         `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// HTTPStatus maps a taxonomy status to an HTTP status code.
func HTTPStatus(s apperrors.Status) int {
	switch s {
	case apperrors.StatusOK:
		return http.StatusOK
	case apperrors.StatusUnauthorized:
		return http.StatusUnauthorized
	case apperrors.StatusForbidden:
		return http.StatusForbidden
	case apperrors.StatusNotFound:
		return http.StatusNotFound
	case apperrors.StatusValidation:
		return http.StatusBadRequest
	case apperrors.StatusTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Success writes a success envelope.
func Success(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Data: data})
}

// Error writes an error envelope from a taxonomy error.
func Error(w http.ResponseWriter, err *apperrors.Error) {
	if err == nil {
		WriteJSON(w, http.StatusInternalServerError, Envelope{Error: &ErrorBody{
			Status:  string(apperrors.StatusServerError),
			Code:    "UNKNOWN",
			Message: "unknown error",
		}})
		return
	}
	WriteJSON(w, HTTPStatus(err.Status), Envelope{Error: &ErrorBody{
		Status:  string(err.Status),
		Code:    err.Code,
		Message: err.Message,
		Meta:    err.Meta,
	}})
}

// WriteResult writes a Result envelope, picking the HTTP status from the
// result's taxonomy status. successStatus applies on the success branch so
// creates can return 201.
func WriteResult[T any](w http.ResponseWriter, successStatus int, res result.Result[T]) {
	if res.IsError() {
		Error(w, res.Err)
		return
	}
	WriteJSON(w, successStatus, Envelope{Data: res.Data, Meta: res.Meta})
}
