// performance.go - обработчики /api/performance.
package handlers

import (
	"net/http"
	"time"
)

const msgPerformanceFailed = "Failed to apply performance action"

// performanceAction - тело POST /api/performance.
type performanceAction struct {
	Action string `json:"action"`
}

// GetPerformance - GET /api/performance?timeWindow=<мс>.
func (h *APIHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	var windowMs *int64
	if !bindQuery(w, r.URL.Query(), map[string]any{"timeWindow": &windowMs}) {
		return
	}
	window := time.Duration(deref(windowMs)) * time.Millisecond
	writeData(w, h.svc.Performance.Report(r.Context(), window), "")
}

// ApplyPerformanceAction - POST /api/performance {action}.
func (h *APIHandler) ApplyPerformanceAction(w http.ResponseWriter, r *http.Request) {
	var req performanceAction
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.svc.Performance.Apply(r.Context(), req.Action)
	if err != nil {
		h.writeServiceError(w, r, err, msgPerformanceFailed)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: msg})
}
