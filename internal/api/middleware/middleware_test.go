package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method, path string
	status       int
}

type fakeRecorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (f *fakeRecorder) RecordRequest(method, path string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, recordedRequest{method, path, status})
}

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(rec))
	r.Get("/api/contests/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {})

	for _, path := range []string{"/api/contests/5", "/api/contests/999999", "/health/live", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if len(rec.reqs) != 3 {
		t.Fatalf("замеров = %d, ожидалось 3 (пробы не учитываются): %+v", len(rec.reqs), rec.reqs)
	}
	for _, got := range rec.reqs[:2] {
		if got.path != "/api/contests/{id}" || got.status != http.StatusNotFound {
			t.Errorf("замер = %+v", got)
		}
	}
	if rec.reqs[2].path != unmatchedPath {
		t.Errorf("неизвестный путь = %q", rec.reqs[2].path)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/contests", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "bytes=2") {
		t.Errorf("нет INFO-записи с размером ответа:\n%s", out)
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("нет ERROR-записи для 500:\n%s", out)
	}
	if strings.Contains(out, "/health/live") {
		t.Errorf("пробы не должны логироваться на INFO:\n%s", out)
	}
}

func TestRequestLogger_RequestID(t *testing.T) {
	h := RequestLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/contests", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("входящий %s не сохранён: %q", RequestIDHeader, got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contests", nil))
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("ожидался сгенерированный UUID, получено %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/backups", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := range 2 {
		if rec := call("10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("запрос %d: %d", i, rec.Code)
		}
	}
	rec := call("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("ожидался 429, получен %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" || rec.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("заголовки: %v", rec.Header())
	}

	// Другой клиент не затронут.
	if rec := call("10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("другой IP: %d", rec.Code)
	}

	// Через секунду появляется токен.
	now = now.Add(time.Second)
	if rec := call("10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("после паузы: %d", rec.Code)
	}

	now = now.Add(visitorTTL + time.Second)
	if n := rl.sweep(); n != 2 {
		t.Errorf("удалено клиентов = %d", n)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.0.5:4321"
	if ip := clientIP(req); ip != "192.168.0.5" {
		t.Errorf("RemoteAddr: %s", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Errorf("X-Forwarded-For: %s", ip)
	}
	// Клиент подставил свой адрес, прокси дописал настоящий.
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 203.0.113.7")
	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Errorf("X-Forwarded-For с подменой: %s", ip)
	}
}

func TestRateLimiter_SpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(forged string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		req.Header.Set("X-Forwarded-For", forged+", 203.0.113.7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call("1.1.1.1"); code != http.StatusOK {
		t.Fatalf("первый запрос: %d", code)
	}
	if code := call("2.2.2.2"); code != http.StatusTooManyRequests {
		t.Errorf("подмена первого адреса обошла лимит: %d", code)
	}
}
