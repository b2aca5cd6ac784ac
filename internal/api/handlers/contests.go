// contests.go - обработчики /api/contests.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/service"
	"github.com/mpd-concursos/concursos-admin/internal/validation"
)

const (
	defaultContestLimit = 10
	maxContestLimit     = 100

	msgContestListFailed   = "Error al obtener los concursos"
	msgContestCreateFailed = "Error al crear el concurso"
	msgContestUpdateFailed = "Error al actualizar el concurso"
	msgContestDeleteFailed = "Error al eliminar el concurso"
)

// ListContestsParams - query-параметры GET /api/contests.
type ListContestsParams struct {
	Status     *string
	Search     *string
	Category   *string
	Department *string
	Page       *int
	Limit      *int
}

// ListContests - GET /api/contests.
func (h *APIHandler) ListContests(w http.ResponseWriter, r *http.Request) {
	var params ListContestsParams
	if !bindQuery(w, r.URL.Query(), map[string]any{
		"status":     &params.Status,
		"search":     &params.Search,
		"category":   &params.Category,
		"department": &params.Department,
		"page":       &params.Page,
		"limit":      &params.Limit,
	}) {
		return
	}

	page, limit := pageParams(params.Page, params.Limit, defaultContestLimit, maxContestLimit)
	filter := model.ContestFilter{
		Status:     deref(params.Status),
		Search:     deref(params.Search),
		Category:   deref(params.Category),
		Department: deref(params.Department),
	}

	res, err := h.svc.Contests.List(r.Context(), filter, page, limit)
	if err != nil {
		h.writeServiceError(w, r, err, msgContestListFailed)
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

// GetContest - GET /api/contests/{id}.
func (h *APIHandler) GetContest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, service.MsgContestIDRequired)
		return
	}

	c, err := h.svc.Contests.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, msgContestListFailed)
		return
	}
	writeData(w, c, "")
}

// CreateContest - POST /api/contests.
func (h *APIHandler) CreateContest(w http.ResponseWriter, r *http.Request) {
	var in validation.ContestInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.svc.Contests.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, msgContestCreateFailed)
		return
	}

	writeEnvelope(w, http.StatusCreated, envelope{
		Data:     res.Contest,
		Message:  service.MsgContestCreated,
		Warnings: res.Warnings,
	})
}

// UpdateContest - PUT /api/contests. ID конкурса передаётся в теле.
func (h *APIHandler) UpdateContest(w http.ResponseWriter, r *http.Request) {
	var in validation.ContestInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.svc.Contests.Update(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, msgContestUpdateFailed)
		return
	}

	writeEnvelope(w, http.StatusOK, envelope{
		Data:     res.Contest,
		Message:  service.MsgContestUpdated,
		Warnings: res.Warnings,
	})
}

// DeleteContest - DELETE /api/contests?id=.
func (h *APIHandler) DeleteContest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, service.MsgContestIDRequired)
		return
	}

	msg, err := h.svc.Contests.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, msgContestDeleteFailed)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: msg})
}
