// validation.go - обработчики /api/validation/...: сессии проверки
// документов постулянта и просмотр каталога его файлов.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/api/middleware"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

const (
	msgSessionFailed     = "Error en la sesión de validación"
	msgSessionClosed     = "Sesión de validación cerrada"
	msgDocumentApproved  = "Documento aprobado exitosamente"
	msgDocumentRejected  = "Documento rechazado exitosamente"
	msgDocumentReverted  = "Documento revertido a PENDING solo en la sesión; el backend no registra la reversión"
	msgNoMorePending     = "No hay más documentos pendientes en esa dirección"
	msgDirectoryFailed   = "Error al listar los documentos del postulante"
	msgDocumentIDMissing = "ID de documento requerido"
)

// sessionMove - ответ next/prev.
type sessionMove struct {
	*service.SessionView
	Moved bool `json:"moved"`
}

// sessionRevert - ответ revert: решение не сохранено в backend.
type sessionRevert struct {
	*service.SessionView
	Persisted bool `json:"persisted"`
}

// StartValidationSession - POST /api/validation/sessions/{dni}.
func (h *APIHandler) StartValidationSession(w http.ResponseWriter, r *http.Request) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Sessions.Start(r.Context(), dni)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope{Data: view})
}

// GetValidationSession - GET /api/validation/sessions/{dni}.
func (h *APIHandler) GetValidationSession(w http.ResponseWriter, r *http.Request) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Sessions.Get(dni)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	writeData(w, view, "")
}

// ResetValidationSession - DELETE /api/validation/sessions/{dni}.
func (h *APIHandler) ResetValidationSession(w http.ResponseWriter, r *http.Request) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}
	if !h.svc.Sessions.Reset(dni) {
		apierrors.NotFound(w, service.MsgSessionNotFound)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: msgSessionClosed})
}

// sessionDocument возвращает DNI и ID документа из пути.
func sessionDocument(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	dni, ok := dniParam(w, r)
	if !ok {
		return "", "", false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.ValidationError(w, msgDocumentIDMissing)
		return "", "", false
	}
	return dni, id, true
}

// ApproveSessionDocument - POST /api/validation/sessions/{dni}/documents/{id}/approve.
func (h *APIHandler) ApproveSessionDocument(w http.ResponseWriter, r *http.Request) {
	dni, id, ok := sessionDocument(w, r)
	if !ok {
		return
	}
	var d service.DocumentDecision
	if !decodeOptionalJSON(w, r, &d) {
		return
	}
	d.ValidatedBy = middleware.UsernameFromContext(r.Context())

	view, err := h.svc.Sessions.Approve(r.Context(), dni, id, d)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	writeData(w, view, msgDocumentApproved)
}

// RejectSessionDocument - POST /api/validation/sessions/{dni}/documents/{id}/reject.
func (h *APIHandler) RejectSessionDocument(w http.ResponseWriter, r *http.Request) {
	dni, id, ok := sessionDocument(w, r)
	if !ok {
		return
	}
	var d service.DocumentDecision
	if !decodeOptionalJSON(w, r, &d) {
		return
	}
	d.ValidatedBy = middleware.UsernameFromContext(r.Context())

	view, err := h.svc.Sessions.Reject(r.Context(), dni, id, d)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	writeData(w, view, msgDocumentRejected)
}

// RevertSessionDocument - POST /api/validation/sessions/{dni}/documents/{id}/revert.
func (h *APIHandler) RevertSessionDocument(w http.ResponseWriter, r *http.Request) {
	dni, id, ok := sessionDocument(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Sessions.Revert(dni, id)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	writeData(w, sessionRevert{SessionView: view}, msgDocumentReverted)
}

// SelectSessionDocument - POST /api/validation/sessions/{dni}/documents/{id}/select.
func (h *APIHandler) SelectSessionDocument(w http.ResponseWriter, r *http.Request) {
	dni, id, ok := sessionDocument(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Sessions.Select(dni, id)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	writeData(w, view, "")
}

// NextSessionDocument - POST /api/validation/sessions/{dni}/next.
func (h *APIHandler) NextSessionDocument(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Sessions.Next)
}

// PrevSessionDocument - POST /api/validation/sessions/{dni}/prev.
func (h *APIHandler) PrevSessionDocument(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Sessions.Prev)
}

func (h *APIHandler) move(w http.ResponseWriter, r *http.Request, fn func(string) (*service.SessionView, bool, error)) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}
	view, moved, err := fn(dni)
	if err != nil {
		h.writeServiceError(w, r, err, msgSessionFailed)
		return
	}
	msg := ""
	if !moved {
		msg = msgNoMorePending
	}
	writeData(w, sessionMove{SessionView: view, Moved: moved}, msg)
}

// ListPostulantFiles - GET /api/validation/documents/{dni}.
// С ?file=<имя> отдаёт сам файл (download=true - как вложение).
func (h *APIHandler) ListPostulantFiles(w http.ResponseWriter, r *http.Request) {
	dni, ok := dniParam(w, r)
	if !ok {
		return
	}

	if name := r.URL.Query().Get("file"); name != "" {
		download, _ := strconv.ParseBool(r.URL.Query().Get("download"))
		stream, err := h.svc.Documents.OpenFile(dni, name)
		if err != nil {
			h.writeServiceError(w, r, err, msgDirectoryFailed)
			return
		}
		h.streamDocument(w, r, stream, download)
		return
	}

	dir, err := h.svc.Documents.Directory(dni)
	if err != nil {
		h.writeServiceError(w, r, err, msgDirectoryFailed)
		return
	}
	writeData(w, dir, "")
}
