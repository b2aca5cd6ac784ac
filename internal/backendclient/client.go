// client.go - HTTP-клиент к backend-сервису конкурсов.
// Аутентификация логином (POST /auth/login), токен кэшируется до его exp
// (если exp не читается - 24 часа). Ответ 401 сбрасывает токен, запрос
// повторяется один раз с новым логином.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ошибки клиента.
var (
	// ErrUnavailable - backend недоступен (сеть, таймаут, ошибка логина).
	ErrUnavailable = errors.New("backend недоступен")
)

// fallbackTokenTTL - срок жизни токена, если exp не удалось прочитать.
const fallbackTokenTTL = 24 * time.Hour

// APIError - ответ backend с кодом вне 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend вернул статус %d: %s", e.StatusCode, e.Message)
}

// IsNotFound - ответ backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client - HTTP-клиент к backend-сервису.
type Client struct {
	baseURL  string
	username string
	password string

	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент. baseURL - например, http://backend:8080/api.
// httpClient может быть nil.
func New(baseURL, username, password string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "backend_client")),
	}
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Аутентификация ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	Authorities []struct {
		Authority string `json:"authority"`
	} `json:"authorities"`
}

// getToken возвращает действующий токен, выполняя логин при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token
	c.tokenExpiry = tokenExpiry(token)

	c.logger.Debug("Токен backend обновлён", slog.Time("expires_at", c.tokenExpiry))
	return c.accessToken, nil
}

// invalidateToken сбрасывает кэшированный токен.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	data, err := json.Marshal(loginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса логина: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("создание запроса логина: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: логин: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: логин отклонён (статус %d): %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("декодирование ответа логина: %w", err)
	}
	if lr.Token == "" {
		return "", fmt.Errorf("%w: ответ логина без токена", ErrUnavailable)
	}

	c.logger.Info("Аутентификация в backend выполнена",
		slog.String("username", lr.Username),
		slog.Int("authorities", len(lr.Authorities)),
	)
	return lr.Token, nil
}

// tokenExpiry читает exp из JWT без проверки подписи: токен выдан
// backend, клиенту нужен только срок жизни.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(fallbackTokenTTL)
}

// --- HTTP helpers ---

// doAuthorized выполняет запрос с Bearer-токеном. При 401 токен
// сбрасывается и запрос повторяется один раз.
func (c *Client) doAuthorized(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		payload = data
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := c.getToken(ctx)
		if err != nil {
			return nil, err
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("создание запроса: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.logger.Info("Backend вернул 401, повторный логин", slog.String("path", path))
			c.invalidateToken()
			continue
		}
		return resp, nil
	}
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}

	if target != nil {
		// Пустое тело (204 и т.п.) ошибкой не считается.
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("декодирование ответа backend: %w", err)
		}
	}
	return nil
}

// readAPIError извлекает message/error из тела ответа.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	resp, err := c.doAuthorized(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doAuthorized(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

// --- Readiness checker ---

// CheckReady проверяет доступность backend: достаточно любого ответа
// ниже 500 на GET базового URL. Недоступный backend не делает админку
// неготовой (конкурсы, схема и бэкапы работают без него), поэтому
// вместо fail возвращается degraded.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return "degraded", fmt.Sprintf("некорректный URL backend: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "degraded", fmt.Sprintf("backend недоступен: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "degraded", fmt.Sprintf("backend вернул статус %d", resp.StatusCode)
	}
	return "ok", "backend доступен"
}
