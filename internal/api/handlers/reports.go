// reports.go - обработчики /api/reports: генерация, список и скачивание.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mpd-concursos/concursos-admin/internal/api/middleware"
	"github.com/mpd-concursos/concursos-admin/internal/docstore"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 100

	msgReportGenerated = "Report generated successfully"
	msgReportFailed    = "Failed to generate report"
	msgReportsFailed   = "Failed to list reports"
	msgDownloadFailed  = "Failed to download report"
)

// ListReportsParams - query-параметры GET /api/reports.
type ListReportsParams struct {
	Type   *string
	Status *string
	Page   *int
	Limit  *int
}

// GenerateReport - POST /api/reports/generate.
func (h *APIHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req service.ReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.GeneratedBy = middleware.UsernameFromContext(r.Context())

	rep, err := h.svc.Reports.Generate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, msgReportFailed)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope{Data: rep, Message: msgReportGenerated})
}

// ListReports - GET /api/reports.
func (h *APIHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	var params ListReportsParams
	if !bindQuery(w, r.URL.Query(), map[string]any{
		"type":   &params.Type,
		"status": &params.Status,
		"page":   &params.Page,
		"limit":  &params.Limit,
	}) {
		return
	}

	page, limit := pageParams(params.Page, params.Limit, defaultReportLimit, maxReportLimit)
	filter := model.ReportFilter{ReportType: deref(params.Type), Status: deref(params.Status)}

	res, err := h.svc.Reports.List(r.Context(), filter, page, limit)
	if err != nil {
		h.writeServiceError(w, r, err, msgReportsFailed)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{
		Data: res.Items,
		Pagination: &Pagination{
			Page:  res.Page,
			Limit: res.Limit,
			Total: res.Total,
			Pages: res.Pages,
		},
	})
}

// DownloadReport - GET /api/reports/{id}/download.
func (h *APIHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Reports.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, msgDownloadFailed)
		return
	}
	defer f.File.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", docstore.SanitizeFileName(f.Name)))
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f.File); err != nil {
		h.logger.Warn("Передача отчёта прервана",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
