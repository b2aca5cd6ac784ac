// users.go - обработчики /api/users: пользователи backend.
package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/report"
)

const (
	defaultUserPageSize = 20
	maxUserPageSize     = 1000

	msgUsersFailed = "Failed to fetch users"
	msgUserFailed  = "Failed to process user"
	msgUserCreated = "User created successfully"
	msgUserUpdated = "User updated successfully"
	msgUserDeleted = "User deleted successfully"
	msgUsersExport = "Failed to export users"
)

// ListUsersParams - query-параметры GET /api/users.
type ListUsersParams struct {
	Search    *string
	Role      *string
	Status    *string
	Page      *int
	Size      *int
	Sort      *string
	Direction *string
}

// updateUserRequest - тело PATCH: поля пользователя и действие.
type updateUserRequest struct {
	model.UserInput
	Action string `json:"action"`
}

// ListUsers - GET /api/users. Страницы нумеруются с 0, как в backend.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var params ListUsersParams
	if !bindQuery(w, r.URL.Query(), map[string]any{
		"search":    &params.Search,
		"role":      &params.Role,
		"status":    &params.Status,
		"page":      &params.Page,
		"size":      &params.Size,
		"sort":      &params.Sort,
		"direction": &params.Direction,
	}) {
		return
	}

	size := defaultUserPageSize
	if params.Size != nil && *params.Size > 0 {
		size = min(*params.Size, maxUserPageSize)
	}
	filter := model.UserFilter{
		Search:    deref(params.Search),
		Role:      deref(params.Role),
		Status:    deref(params.Status),
		Page:      max(deref(params.Page), 0),
		Size:      size,
		Sort:      deref(params.Sort),
		Direction: deref(params.Direction),
	}

	res, err := h.svc.Users.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, msgUsersFailed)
		return
	}
	total := res.Page.TotalElements
	writeEnvelope(w, http.StatusOK, envelope{
		Data:   res.Page,
		Total:  &total,
		Cached: res.Cached,
	})
}

// GetUser - GET /api/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, msgUserFailed)
		return
	}
	writeData(w, u, "")
}

// CreateUser - POST /api/users.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in model.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := h.svc.Users.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, msgUserFailed)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope{Data: u, Message: msgUserCreated})
}

// UpdateUser - PATCH /api/users/{id}.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.Users.Update(r.Context(), chi.URLParam(r, "id"), req.UserInput, req.Action)
	if err != nil {
		h.writeServiceError(w, r, err, msgUserFailed)
		return
	}
	writeData(w, u, msgUserUpdated)
}

// DeleteUser - DELETE /api/users/{id}.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err, msgUserFailed)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: msgUserDeleted})
}

// ExportUsers - GET /api/users/export?search&role&status: CSV со всеми
// пользователями под фильтром.
func (h *APIHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.Users.Export(r.Context(), model.UserFilter{
		Search: q.Get("search"),
		Role:   q.Get("role"),
		Status: q.Get("status"),
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgUsersExport)
		return
	}

	renderer, err := report.ForFormat(model.FormatCSV)
	if err != nil {
		h.writeServiceError(w, r, err, msgUsersExport)
		return
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, res.Data); err != nil {
		h.writeServiceError(w, r, err, msgUsersExport)
		return
	}

	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("Передача выгрузки прервана",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
