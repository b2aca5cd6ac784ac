// routes.go - таблица маршрутов /api.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes регистрирует маршруты API на r (смонтированном на /api).
// strict - дополнительный лимитер для создания бэкапов, восстановления
// и генерации отчётов; nil - без него.
func (h *APIHandler) RegisterRoutes(r chi.Router, strict func(http.Handler) http.Handler) {
	limited := r
	if strict != nil {
		limited = r.With(strict)
	}

	r.Get("/contests", h.ListContests)
	r.Post("/contests", h.CreateContest)
	r.Put("/contests", h.UpdateContest)
	r.Delete("/contests", h.DeleteContest)
	r.Get("/contests/{id}", h.GetContest)

	r.Get("/postulations", h.ListPostulations)
	r.Get("/postulations/next", h.NextPostulation)
	r.Route("/postulations/{dni}", func(r chi.Router) {
		r.Get("/documents", h.GetPostulantDocuments)
		r.Post("/approve", h.ApprovePostulation)
		r.Post("/reject", h.RejectPostulation)
		r.Post("/start-validation", h.StartPostulationValidation)
		r.Post("/revert", h.RevertPostulation)
	})

	r.Route("/validation", func(r chi.Router) {
		r.Get("/documents/{dni}", h.ListPostulantFiles)
		r.Route("/sessions/{dni}", func(r chi.Router) {
			r.Post("/", h.StartValidationSession)
			r.Get("/", h.GetValidationSession)
			r.Delete("/", h.ResetValidationSession)
			r.Post("/next", h.NextSessionDocument)
			r.Post("/prev", h.PrevSessionDocument)
			r.Post("/documents/{id}/approve", h.ApproveSessionDocument)
			r.Post("/documents/{id}/reject", h.RejectSessionDocument)
			r.Post("/documents/{id}/revert", h.RevertSessionDocument)
			r.Post("/documents/{id}/select", h.SelectSessionDocument)
		})
	})

	r.Get("/documents/{id}/view", h.ViewDocument)

	r.Get("/backups", h.ListBackups)
	limited.Post("/backups", h.CreateBackup)
	limited.Put("/backups", h.RestoreBackup)
	r.Delete("/backups", h.DeleteBackup)
	r.Get("/backups/download", h.DownloadBackup)

	r.Get("/users", h.ListUsers)
	r.Get("/users/export", h.ExportUsers)
	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.Patch("/users/{id}", h.UpdateUser)
	r.Delete("/users/{id}", h.DeleteUser)

	r.Get("/dashboard/stats", h.GetDashboardStats)

	r.Get("/schema", h.GetSchema)
	r.Delete("/schema", h.ClearSchemaCache)

	r.Get("/performance", h.GetPerformance)
	r.Post("/performance", h.ApplyPerformanceAction)

	r.Get("/reports", h.ListReports)
	limited.Post("/reports/generate", h.GenerateReport)
	r.Get("/reports/{id}/download", h.DownloadReport)
}
