package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"tickerdesk-backend/internal/adapter"
	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/observability"
	"tickerdesk-backend/pkg/api"
)

// AdminHandler exposes the operator endpoints: adapter status, source
// preference, and per-operation performance counters.
type AdminHandler struct {
	adapter *adapter.Adapter
	perf    *observability.PerformanceTracker
	logger  *zap.Logger
}

// NewAdminHandler builds the handler.
func NewAdminHandler(a *adapter.Adapter, perf *observability.PerformanceTracker, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{adapter: a, perf: perf, logger: logger}
}

// DataSourceStatus reports the adapter's selection state and counters.
func (h *AdminHandler) DataSourceStatus(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.adapter.Status())
}

// SetDataSourcePreference overrides the source selection at runtime.
func (h *AdminHandler) SetDataSourcePreference(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Preference string `json:"preference"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	switch adapter.Preference(in.Preference) {
	case adapter.PreferAuto, adapter.PreferReal, adapter.PreferFallback:
	default:
		api.Error(w, apperrors.Validation("INVALID_PREFERENCE",
			"preference must be auto, real, or fallback"))
		return
	}
	h.adapter.SetPreference(adapter.Preference(in.Preference))
	api.Success(w, http.StatusOK, h.adapter.Status())
}

// PerformanceMetrics reports the rolling per-operation counters.
func (h *AdminHandler) PerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.perf.Snapshot())
}
