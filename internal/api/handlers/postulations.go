// postulations.go - обработчики /api/postulations: список и очередь
// проверки, агрегация документов постулянта и смена состояния
// инскрипции.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/api/middleware"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

const (
	msgDNIRequired        = "DNI requerido"
	msgDocumentsFailed    = "Error al obtener los documentos del postulante"
	msgStateChangeFailed  = "Error al cambiar el estado de la inscripción"
	msgPostulationApprove = "Postulación aprobada exitosamente"
	msgPostulationReject  = "Postulación rechazada exitosamente"
	msgValidationStarted  = "Proceso de validación iniciado"
	msgPostulationRevert  = "Estado de la inscripción revertido a PENDING"
	msgPostulationsFailed = "Error al obtener las postulaciones"

	defaultPostulationPageSize = 15
	maxPostulationPageSize     = 100
)

// ListPostulationsParams - query-параметры GET /api/postulations.
type ListPostulationsParams struct {
	Page      *int
	PageSize  *int
	Search    *string
	OnlyStats *bool
}

// ListPostulations - GET /api/postulations. Страницы нумеруются с 1.
func (h *APIHandler) ListPostulations(w http.ResponseWriter, r *http.Request) {
	var params ListPostulationsParams
	if !bindQuery(w, r.URL.Query(), map[string]any{
		"page":      &params.Page,
		"pageSize":  &params.PageSize,
		"search":    &params.Search,
		"onlyStats": &params.OnlyStats,
	}) {
		return
	}

	page, size := pageParams(params.Page, params.PageSize, defaultPostulationPageSize, maxPostulationPageSize)
	res, err := h.svc.Postulations.List(r.Context(), service.PostulationQuery{
		Page:      page,
		PageSize:  size,
		Search:    deref(params.Search),
		OnlyStats: deref(params.OnlyStats),
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgPostulationsFailed)
		return
	}

	writeEnvelope(w, http.StatusOK, envelope{
		Data: res,
		Pagination: &Pagination{
			Page:  page,
			Limit: size,
			Total: res.Total,
			Pages: (res.Total + size - 1) / size,
		},
	})
}

// NextPostulation - GET /api/postulations/next?currentDni=.
func (h *APIHandler) NextPostulation(w http.ResponseWriter, r *http.Request) {
	current := strings.TrimSpace(r.URL.Query().Get("currentDni"))
	res, err := h.svc.Postulations.Next(r.Context(), current)
	if err != nil {
		h.writeServiceError(w, r, err, msgPostulationsFailed)
		return
	}
	message := ""
	if !res.HasNext {
		message = service.MsgNoPendingPostulations
	}
	writeData(w, res, message)
}

// dniParam возвращает DNI из пути. Пустой DNI - 400.
func dniParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	dni := strings.TrimSpace(chi.URLParam(r, "dni"))
	if dni == "" {
		apierrors.ValidationError(w, msgDNIRequired)
		return "", false
	}
	return dni, true
}

// decodeOptionalJSON читает тело, если оно есть. Пустое тело допустимо.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		apierrors.WriteError(w, http.StatusBadRequest, msgInvalidJSON, err.Error(), nil)
		return false
	}
	return true
}

// GetPostulantDocuments - GET /api/postulations/{dni}/documents.
func (h *APIHandler) GetPostulantDocuments(w http.ResponseWriter, r *http.Request) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Postulations.Documents(r.Context(), dni)
	if err != nil {
		h.writeServiceError(w, r, err, msgDocumentsFailed)
		return
	}
	writeData(w, res, "")
}

type decisionFunc func(ctx context.Context, dni string, in service.DecisionInput) (*model.BackendInscription, error)

// decide - общий обработчик approve/reject/start-validation.
func (h *APIHandler) decide(w http.ResponseWriter, r *http.Request, fn decisionFunc, message string) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}
	var in service.DecisionInput
	if !decodeOptionalJSON(w, r, &in) {
		return
	}

	ins, err := fn(r.Context(), dni, in)
	if err != nil {
		h.writeServiceError(w, r, err, msgStateChangeFailed)
		return
	}
	writeData(w, ins, message)
}

// ApprovePostulation - POST /api/postulations/{dni}/approve.
func (h *APIHandler) ApprovePostulation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Postulations.Approve, msgPostulationApprove)
}

// RejectPostulation - POST /api/postulations/{dni}/reject.
func (h *APIHandler) RejectPostulation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Postulations.Reject, msgPostulationReject)
}

// StartPostulationValidation - POST /api/postulations/{dni}/start-validation.
func (h *APIHandler) StartPostulationValidation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Postulations.StartValidation, msgValidationStarted)
}

// RevertPostulation - POST /api/postulations/{dni}/revert.
// Без revertedBy в теле используется имя из токена.
func (h *APIHandler) RevertPostulation(w http.ResponseWriter, r *http.Request) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}
	var in service.RevertInput
	if !decodeOptionalJSON(w, r, &in) {
		return
	}
	if in.RevertedBy == "" {
		in.RevertedBy = middleware.UsernameFromContext(r.Context())
	}

	res, err := h.svc.Postulations.Revert(r.Context(), dni, in)
	if err != nil {
		h.writeServiceError(w, r, err, msgStateChangeFailed)
		return
	}
	writeData(w, res, msgPostulationRevert)
}
