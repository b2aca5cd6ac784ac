// dashboard.go - обработчик сводки панели.
package handlers

import "net/http"

const msgDashboardFailed = "Error al obtener las estadísticas del panel"

// GetDashboardStats - GET /api/dashboard/stats.
func (h *APIHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	res, cached, err := h.svc.Dashboard.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, msgDashboardFailed)
		return
	}
	env := envelope{Data: res, Cached: cached}
	for _, section := range res.Unavailable {
		env.Warnings = append(env.Warnings, "Sección no disponible: "+section)
	}
	writeEnvelope(w, http.StatusOK, env)
}
