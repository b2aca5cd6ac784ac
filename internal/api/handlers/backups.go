// backups.go - обработчики /api/backups: создание, список,
// восстановление, удаление и скачивание резервных копий.
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

const (
	msgBackupCreated   = "Backup created successfully"
	msgBackupRestored  = "Backup restored successfully. Documents were not restored"
	msgBackupListError = "Failed to list backups"
	msgBackupDelError  = "Failed to delete backup"
	msgBackupFileError = "Failed to read backup file"
	msgInvalidKind     = "Invalid kind. Use: db or documents"
)

// ListBackups - GET /api/backups.
func (h *APIHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Backups.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, msgBackupListError)
		return
	}
	total := len(items)
	writeEnvelope(w, http.StatusOK, envelope{Data: items, Total: &total})
}

// CreateBackup - POST /api/backups.
func (h *APIHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBackupInput
	if !decodeJSON(w, r, &in) {
		return
	}

	b, err := h.svc.Backups.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, service.MsgBackupCreateFailed)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope{Data: b, Message: msgBackupCreated})
}

// RestoreBackup - PUT /api/backups.
func (h *APIHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	var in service.RestoreInput
	if !decodeJSON(w, r, &in) {
		return
	}

	b, err := h.svc.Backups.Restore(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, service.MsgBackupRestoreFailed)
		return
	}
	writeData(w, b, msgBackupRestored)
}

// DeleteBackup - DELETE /api/backups?id=.
func (h *APIHandler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		apierrors.ValidationError(w, service.MsgBackupIDRequired)
		return
	}

	b, err := h.svc.Backups.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, msgBackupDelError)
		return
	}
	writeData(w, b, fmt.Sprintf("Backup %q deleted successfully", b.Name))
}

// DownloadBackup - GET /api/backups/download?id=&kind=db|documents.
func (h *APIHandler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		apierrors.ValidationError(w, service.MsgBackupIDRequired)
		return
	}
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "":
		kind = service.BackupFileDB
	case service.BackupFileDB, service.BackupFileDocuments:
	default:
		apierrors.ValidationError(w, msgInvalidKind)
		return
	}

	path, err := h.svc.Backups.File(r.Context(), id, kind)
	if err != nil {
		h.writeServiceError(w, r, err, msgBackupFileError)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.writeServiceError(w, r, err, msgBackupFileError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.writeServiceError(w, r, err, msgBackupFileError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
