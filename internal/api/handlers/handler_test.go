package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpd-concursos/concursos-admin/internal/docstore"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	h := NewAPIHandler(NewHealthHandler(nil, nil), Services{}, testLogger())

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"валидация", &service.Error{Kind: service.ErrValidation, Message: "m"}, http.StatusBadRequest},
		{"не найдено", &service.Error{Kind: service.ErrNotFound, Message: "m"}, http.StatusNotFound},
		{"запрещено", &service.Error{Kind: service.ErrForbidden, Message: "m"}, http.StatusForbidden},
		{"конфликт", &service.Error{Kind: service.ErrConflict, Message: "m"}, http.StatusConflict},
		{"в процессе", &service.Error{Kind: service.ErrInProgress, Message: "m"}, http.StatusConflict},
		{"backend", &service.Error{Kind: service.ErrBackendUnavailable, Message: "m"}, http.StatusBadGateway},
		{"внутренняя", &service.Error{Kind: service.ErrInternal, Message: "m"}, http.StatusInternalServerError},
		{"обёрнутая", errors.Join(errors.New("x"), &service.Error{Kind: service.ErrNotFound, Message: "m"}), http.StatusNotFound},
		{"неизвестная", errors.New("сбой"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			h.writeServiceError(rec, req, tt.err, "fallback")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

type staticChecker struct{ status string }

func (c staticChecker) CheckReady() (string, string) { return c.status, c.status }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		db       ReadinessChecker
		backend  ReadinessChecker
		wantCode int
		want     string
	}{
		{"всё доступно", staticChecker{"ok"}, staticChecker{"ok"}, http.StatusOK, "ok"},
		{"backend недоступен", staticChecker{"ok"}, staticChecker{"degraded"}, http.StatusOK, "degraded"},
		{"без backend", staticChecker{"ok"}, nil, http.StatusOK, "degraded"},
		{"MySQL недоступна", staticChecker{"fail"}, staticChecker{"ok"}, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.db, tt.backend).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec)["status"])
		})
	}
}

func newDocumentsRouter(t *testing.T) http.Handler {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "30123456")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "título carrera.pdf"), []byte("%PDF-1.4"), 0o644))

	store := docstore.New([]string{base}, testLogger())
	return newTestRouter(Services{Documents: service.NewDocumentService(store, nil, nil, testLogger())})
}

func TestListPostulantFiles(t *testing.T) {
	h := newDocumentsRouter(t)

	rec := do(h, http.MethodGet, "/api/validation/documents/30123456", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "30123456", data["dni"])
	assert.Equal(t, 1.0, data["total"])

	rec = do(h, http.MethodGet, "/api/validation/documents/99999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPostulantFiles_Stream(t *testing.T) {
	h := newDocumentsRouter(t)

	rec := do(h, http.MethodGet, "/api/validation/documents/30123456?file=t%C3%ADtulo%20carrera.pdf&download=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="t_tulo_carrera.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = do(h, http.MethodGet, "/api/validation/documents/30123456?file=..%2F..%2Fetc%2Fpasswd", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPageParams(t *testing.T) {
	neg, big, zero := -3, 500, 0
	tests := []struct {
		page, limit         *int
		wantPage, wantLimit int
	}{
		{nil, nil, 1, 10},
		{&neg, &zero, 1, 10},
		{&big, &big, 500, 100},
	}
	for _, tt := range tests {
		p, l := pageParams(tt.page, tt.limit, 10, 100)
		assert.Equal(t, tt.wantPage, p)
		assert.Equal(t, tt.wantLimit, l)
	}
}
