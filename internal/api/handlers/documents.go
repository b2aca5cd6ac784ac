// documents.go - просмотр файлов документов: /api/documents/{id}/view.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/docstore"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

const msgDocumentViewFailed = "Error al obtener el archivo del documento"

// ViewDocument - GET /api/documents/{id}/view?dni=.
// Файл ищется в хранилище документов, затем запрашивается у backend.
func (h *APIHandler) ViewDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.ValidationError(w, service.MsgDocumentIDRequired)
		return
	}
	download, _ := strconv.ParseBool(r.URL.Query().Get("download"))

	stream, err := h.svc.Documents.View(r.Context(), id, r.URL.Query().Get("dni"))
	if err != nil {
		h.writeServiceError(w, r, err, msgDocumentViewFailed)
		return
	}
	h.streamDocument(w, r, stream, download)
}

// streamDocument отдаёт файл документа и закрывает его.
func (h *APIHandler) streamDocument(w http.ResponseWriter, r *http.Request, s *service.DocumentStream, download bool) {
	defer s.Body.Close()

	disposition := "inline"
	if download {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", s.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("%s; filename=%q", disposition, docstore.SanitizeFileName(s.Name)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Document-Source", s.Source)
	if s.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(s.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, s.Body); err != nil {
		h.logger.Warn("Передача файла прервана",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
