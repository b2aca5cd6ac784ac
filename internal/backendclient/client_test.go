package backendclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockBackend создаёт mock HTTP-сервер backend.
// loginHandler обрабатывает /auth/login, apiHandler - остальные запросы.
func setupMockBackend(t *testing.T, loginHandler, apiHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if loginHandler != nil {
			loginHandler(w, r)
			return
		}
		writeToken(w, "test-token")
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if apiHandler != nil {
			apiHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(server.URL+"/api", "admin", "secret", server.Client(), testLogger())
	return server, client
}

func writeToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":       token,
		"username":    "admin",
		"authorities": []map[string]string{{"authority": "ROLE_ADMIN"}},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// TestClient_TokenCaching проверяет, что логин выполняется один раз.
func TestClient_TokenCaching(t *testing.T) {
	var logins atomic.Int32

	_, client := setupMockBackend(t,
		func(w http.ResponseWriter, r *http.Request) {
			logins.Add(1)
			var req loginRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Username != "admin" || req.Password != "secret" {
				t.Errorf("неверные учётные данные в логине: %+v", req)
			}
			writeToken(w, "cached-token")
		},
		nil,
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		token, err := client.getToken(ctx)
		if err != nil {
			t.Fatalf("Ошибка получения токена: %v", err)
		}
		if token != "cached-token" {
			t.Errorf("ожидался cached-token, получен %s", token)
		}
	}

	if logins.Load() != 1 {
		t.Errorf("ожидался 1 логин, было %d", logins.Load())
	}
}

// TestTokenExpiry проверяет чтение exp из JWT и fallback на 24 часа.
func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("Ошибка подписи JWT: %v", err)
	}

	if got := tokenExpiry(signed); !got.Equal(exp) {
		t.Errorf("tokenExpiry(jwt) = %v, ожидали %v", got, exp)
	}

	got := tokenExpiry("opaque-token")
	if d := time.Until(got); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("tokenExpiry(opaque) через %v, ожидали ~24h", d)
	}
}

// TestClient_RetryOn401 проверяет повторный логин при 401.
func TestClient_RetryOn401(t *testing.T) {
	var logins, calls atomic.Int32

	_, client := setupMockBackend(t,
		func(w http.ResponseWriter, r *http.Request) {
			n := logins.Add(1)
			if n == 1 {
				writeToken(w, "stale-token")
				return
			}
			writeToken(w, "fresh-token")
		},
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, map[string]any{"totalDocumentos": 10, "pendientes": 4})
		},
	)

	stats, err := client.DocumentStats(context.Background())
	if err != nil {
		t.Fatalf("DocumentStats: %v", err)
	}
	if stats.Total != 10 || stats.Pending != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if logins.Load() != 2 || calls.Load() != 2 {
		t.Errorf("логинов %d, запросов %d; ожидали 2 и 2", logins.Load(), calls.Load())
	}
}

// TestClient_401Twice проверяет, что повтор выполняется только один раз.
func TestClient_401Twice(t *testing.T) {
	var calls atomic.Int32

	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"token inválido"}`)
	})

	_, err := client.DocumentStats(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("ожидали APIError 401, получили %v", err)
	}
	if apiErr.Message != "token inválido" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if calls.Load() != 2 {
		t.Errorf("ожидали 2 запроса, было %d", calls.Load())
	}
}

// TestClient_LoginUnavailable проверяет ErrUnavailable при отказе логина.
func TestClient_LoginUnavailable(t *testing.T) {
	_, client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	_, err := client.ListUsers(context.Background(), model.UserFilter{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ожидали ErrUnavailable, получили %v", err)
	}
}

// TestClient_ConnectionRefused проверяет ErrUnavailable при сетевой ошибке.
func TestClient_ConnectionRefused(t *testing.T) {
	server, client := setupMockBackend(t, nil, nil)
	server.Close()

	_, err := client.DocumentStats(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ожидали ErrUnavailable, получили %v", err)
	}
}

// TestListInscriptions_Query проверяет параметры запроса и разбор ответа.
func TestListInscriptions_Query(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/inscriptions" {
			t.Errorf("путь = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("state") != "PENDING" || q.Get("status") != "" {
			t.Errorf("status должен передаваться как state: %v", q)
		}
		if q.Get("size") != "1000" {
			t.Errorf("size = %q, ожидали 1000", q.Get("size"))
		}
		if q.Get("userId") != "u-1" {
			t.Errorf("userId = %q", q.Get("userId"))
		}
		writeJSON(w, map[string]any{
			"content": []map[string]any{{
				"id":              "ins-1",
				"userId":          "u-1",
				"contestId":       7,
				"status":          "completed_with_docs",
				"inscriptionDate": "2025-08-01T10:15:30",
				"userInfo":        map[string]string{"dni": "26598410", "fullName": "Ana Pérez"},
				"contestInfo":     map[string]string{"title": "Defensor/a Civil"},
			}},
			"totalElements": 1, "totalPages": 1, "size": 1000, "number": 0,
		})
	})

	page, err := client.ListInscriptions(context.Background(), InscriptionQuery{UserID: "u-1", Status: "PENDING"})
	if err != nil {
		t.Fatalf("ListInscriptions: %v", err)
	}
	if len(page.Content) != 1 {
		t.Fatalf("ожидали 1 инскрипцию, получили %d", len(page.Content))
	}
	ins := page.Content[0]
	if ins.ContestID != 7 || ins.State != model.InscriptionCompletedWithDocs {
		t.Errorf("инскрипция = %+v", ins)
	}
	if ins.UserDNI != "26598410" || ins.ContestTitle != "Defensor/a Civil" {
		t.Errorf("userInfo/contestInfo не разобраны: %+v", ins)
	}
	if ins.InscriptionDate == nil || ins.InscriptionDate.Day() != 1 {
		t.Errorf("InscriptionDate = %v", ins.InscriptionDate)
	}
}

// TestListDocuments_FieldFallbacks проверяет нормализацию полей документа.
func TestListDocuments_FieldFallbacks(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("usuarioId") != "u-1" {
			t.Errorf("usuarioId = %q", r.URL.Query().Get("usuarioId"))
		}
		writeJSON(w, map[string]any{
			"content": []map[string]any{
				{
					"id":            "d-1",
					"nombreArchivo": "dni_frente.pdf",
					"estado":        "PROCESSING",
					"tipoDocumento": map[string]any{"code": "DNI_FRONTAL", "nombre": "DNI (Frontal)"},
					"dniUsuario":    "26598410",
					"fileSize":      0,
					"fechaCarga":    "2025-08-01T10:00:00Z",
				},
				{
					"id":             "d-2",
					"fileName":       "constancia.pdf",
					"status":         "error",
					"documentTypeId": "99eecc88-abca-4086-b9e5-ce6f63eecab7",
					"usuarioId":      "u-1",
					"size":           2048,
				},
				{
					"id":       12345,
					"fileName": "Título Analítico.pdf",
					"status":   "APPROVED",
				},
			},
			"totalElements": 3,
		})
	})

	page, err := client.ListDocuments(context.Background(), DocumentQuery{UserID: "u-1"})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(page.Content) != 3 {
		t.Fatalf("ожидали 3 документа, получили %d", len(page.Content))
	}

	d1 := page.Content[0]
	if d1.FileName != "dni_frente.pdf" || d1.ValidationStatus != model.DocumentPending {
		t.Errorf("d1 = %+v", d1)
	}
	if d1.DocumentType != model.DocTypeDNIFront || !d1.IsRequired || d1.UserDNI != "26598410" {
		t.Errorf("d1 тип/обязательность/dni: %+v", d1)
	}
	if d1.UploadDate == nil {
		t.Error("d1.UploadDate должен быть разобран из fechaCarga")
	}

	d2 := page.Content[1]
	if d2.ValidationStatus != model.DocumentRejected {
		t.Errorf("ERROR должен отображаться в REJECTED, получили %s", d2.ValidationStatus)
	}
	if d2.DocumentType != model.DocTypeCUIL || d2.FileSize != 2048 || d2.UserID != "u-1" {
		t.Errorf("d2 = %+v", d2)
	}

	d3 := page.Content[2]
	if d3.ID != "12345" || d3.DocumentType != model.DocTypeDegree {
		t.Errorf("d3 = %+v", d3)
	}
}

// TestRejectDocument_Body проверяет тело запроса отклонения.
func TestRejectDocument_Body(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/admin/documents/d-1/reject" {
			t.Errorf("запрос = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["motivo"] != "Ilegible" {
			t.Errorf("motivo = %q", body["motivo"])
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.RejectDocument(context.Background(), "d-1", "Ilegible"); err != nil {
		t.Fatalf("RejectDocument: %v", err)
	}
}

func TestDocumentStats(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/documents/stats" {
			t.Errorf("путь = %s", r.URL.Path)
		}
		writeJSON(w, map[string]any{
			"totalDocumentos": 12,
			"pendientes":      5,
			"aprobados":       6,
			"rechazados":      1,
		})
	})

	st, err := client.DocumentStats(context.Background())
	if err != nil {
		t.Fatalf("DocumentStats: %v", err)
	}
	if *st != (DocumentStatistics{Total: 12, Pending: 5, Approved: 6, Rejected: 1}) {
		t.Errorf("stats = %+v", st)
	}
}

// TestChangeInscriptionState проверяет тело запроса смены состояния.
func TestChangeInscriptionState(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/inscriptions/ins-9/state" {
			t.Errorf("путь = %s", r.URL.Path)
		}
		var body stateChangeRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.InscriptionID != "ins-9" || body.NewState != "APPROVED" || body.Note != "ok" {
			t.Errorf("тело = %+v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	ins, err := client.ChangeInscriptionState(context.Background(), "ins-9", "APPROVED", "ok")
	if err != nil {
		t.Fatalf("ChangeInscriptionState: %v", err)
	}
	if ins.ID != "ins-9" || ins.State != "APPROVED" {
		t.Errorf("инскрипция = %+v", ins)
	}
}

// TestGetUser_NotFound проверяет IsNotFound.
func TestGetUser_NotFound(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "not found")
	})

	_, err := client.GetUser(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("ожидали 404, получили %v", err)
	}
}

// TestListUsers_Mapping проверяет параметры и fallback имени.
func TestListUsers_Mapping(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("search") != "perez" || q.Get("size") != "20" || q.Get("page") != "0" {
			t.Errorf("query = %v", q)
		}
		writeJSON(w, map[string]any{
			"content": []map[string]any{
				{"id": "u-1", "username": "26598410", "firstName": "Ana", "lastName": "Pérez", "status": "active"},
			},
			"totalElements": 1,
		})
	})

	page, err := client.ListUsers(context.Background(), model.UserFilter{Search: "perez", Size: 20})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	u := page.Content[0]
	if u.FullName != "Ana Pérez" || u.Status != model.UserStatusActive || u.Role != model.RoleUser {
		t.Errorf("пользователь = %+v", u)
	}
}

// TestDownloadDocument проверяет имя файла из Content-Disposition.
func TestDownloadDocument(t *testing.T) {
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/documents/d-1/file") {
			t.Errorf("путь = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="dni.pdf"`)
		io.WriteString(w, "%PDF-1.4")
	})

	file, err := client.DownloadDocument(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("DownloadDocument: %v", err)
	}
	defer file.Body.Close()

	data, _ := io.ReadAll(file.Body)
	if string(data) != "%PDF-1.4" || file.FileName != "dni.pdf" || file.ContentType != "application/pdf" {
		t.Errorf("файл = %+v, содержимое %q", file, data)
	}
}

// TestMapDocumentStatus проверяет отображение статусов backend.
func TestMapDocumentStatus(t *testing.T) {
	tests := map[string]string{
		"APPROVED":   model.DocumentApproved,
		"approved":   model.DocumentApproved,
		"REJECTED":   model.DocumentRejected,
		"ERROR":      model.DocumentRejected,
		"PROCESSING": model.DocumentPending,
		"PENDING":    model.DocumentPending,
		"":           model.DocumentPending,
		"ARCHIVED":   model.DocumentPending,
	}
	for in, want := range tests {
		if got := MapDocumentStatus(in); got != want {
			t.Errorf("MapDocumentStatus(%q) = %s, ожидали %s", in, got, want)
		}
	}
}

func TestClient_CheckReady(t *testing.T) {
	var fail atomic.Bool
	_, client := setupMockBackend(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	if status, msg := client.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q, %q; ожидали ok", status, msg)
	}

	fail.Store(true)
	if status, _ := client.CheckReady(); status != "degraded" {
		t.Errorf("при 502 ожидали degraded, получили %q", status)
	}
}
