package handlers

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpd-concursos/concursos-admin/internal/repository"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

var contestCols = []string{
	"id", "title", "category", "class_", "department", "position", "functions", "status",
	"start_date", "end_date", "inscription_start_date", "inscription_end_date",
	"bases_url", "description_url", "created_at", "updated_at",
}

func contestRow(id int64, title string) []driver.Value {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, title, "EMPLEADOS", "05", nil, nil, nil, "ACTIVE",
		nil, nil, now, now.Add(10 * 24 * time.Hour),
		nil, nil, now, now,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter собирает маршруты /api поверх переданных сервисов.
func newTestRouter(svc Services) http.Handler {
	h := NewAPIHandler(NewHealthHandler(nil, nil), svc, testLogger())
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) { h.RegisterRoutes(r, nil) })
	return r
}

func newContestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.NewContestService(repository.NewContestRepository(db), testLogger())
	return newTestRouter(Services{Contests: svc}), mock
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody разбирает конверт ответа.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestListContests_Pagination(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \? OFFSET \?`).
		WithArgs(10, 10).
		WillReturnRows(sqlmock.NewRows(contestCols).AddRow(contestRow(11, "Concurso once")...))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total FROM contests`).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(11))

	rec := do(h, http.MethodGet, "/api/contests?page=2&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["data"], 1)
	assert.Equal(t, map[string]any{"page": 2.0, "limit": 10.0, "total": 11.0, "pages": 2.0}, body["pagination"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListContests_LimitCapped(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectQuery(`LIMIT \? OFFSET \?`).
		WithArgs("ACTIVE", 100, 0).
		WillReturnRows(sqlmock.NewRows(contestCols))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(0))

	rec := do(h, http.MethodGet, "/api/contests?status=ACTIVE&limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{}, decodeBody(t, rec)["data"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListContests_InvalidPage(t *testing.T) {
	h, _ := newContestRouter(t)
	rec := do(h, http.MethodGet, "/api/contests?page=dos", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateContest(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectExec(`INSERT INTO contests`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(`FROM contests WHERE id = \?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(contestCols).AddRow(contestRow(7, "Concurso de empleados")...))

	rec := do(h, http.MethodPost, "/api/contests", `{
		"title": "Concurso de empleados",
		"status": "ACTIVE",
		"category": "EMPLEADOS",
		"inscription_start_date": "2030-01-01",
		"inscription_end_date": "2030-01-11"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, service.MsgContestCreated, body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, 7.0, data["id"])
	assert.Equal(t, "05", data["class_"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateContest_ShortTitle(t *testing.T) {
	h, mock := newContestRouter(t)

	rec := do(h, http.MethodPost, "/api/contests", `{
		"title": "abc",
		"status": "ACTIVE",
		"inscription_start_date": "2030-01-01",
		"inscription_end_date": "2030-01-11"
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, service.MsgContestValidation, body["error"])
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs["title"].([]any)[0], "5 caracteres")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContest_NotFound(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectQuery(`FROM contests WHERE id = \?`).
		WithArgs(999999).
		WillReturnRows(sqlmock.NewRows(contestCols))

	rec := do(h, http.MethodPut, "/api/contests", `{"id": 999999, "title": "Concurso editado"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Concurso no encontrado", body["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContest_MissingID(t *testing.T) {
	h, _ := newContestRouter(t)
	rec := do(h, http.MethodPut, "/api/contests", `{"title": "Concurso editado"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.MsgContestIDRequired, decodeBody(t, rec)["error"])
}

func TestDeleteContest_WithInscriptions(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectQuery(`FROM contests WHERE id = \?`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(contestCols).AddRow(contestRow(1, "Concurso Uno")...))
	mock.ExpectQuery(`FROM inscriptions WHERE contest_id = \?`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	rec := do(h, http.MethodDelete, "/api/contests?id=1", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, service.MsgContestHasInscripts, body["error"])
	assert.Contains(t, body["details"], "5 inscripciones")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteContest(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectQuery(`FROM contests WHERE id = \?`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(contestCols).AddRow(contestRow(2, "Concurso Dos")...))
	mock.ExpectQuery(`FROM inscriptions WHERE contest_id = \?`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DELETE FROM contests WHERE id = \?`).
		WithArgs(2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(h, http.MethodDelete, "/api/contests?id=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `Concurso "Concurso Dos" eliminado exitosamente`, decodeBody(t, rec)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteContest_MissingID(t *testing.T) {
	h, _ := newContestRouter(t)
	rec := do(h, http.MethodDelete, "/api/contests", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContest_DBError(t *testing.T) {
	h, mock := newContestRouter(t)

	mock.ExpectQuery(`FROM contests WHERE id = \?`).
		WithArgs(3).
		WillReturnError(errors.New("conexión perdida"))

	rec := do(h, http.MethodGet, "/api/contests/3", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["details"])
}
