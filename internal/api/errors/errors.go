// Пакет errors - ответы с ошибками в едином конверте API:
// {"success": false, "error": "...", "errors": {...}, "details": "...", "timestamp": "..."}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Body - тело ответа с ошибкой.
type Body struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	// Errors - ошибки по полям.
	Errors    map[string][]string `json:"errors,omitempty"`
	Details   string              `json:"details,omitempty"`
	Timestamp string              `json:"timestamp"`
}

// WriteError записывает ответ ошибки. details и fields необязательны.
func WriteError(w http.ResponseWriter, statusCode int, message, details string, fields map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Body{
		Error:     message,
		Errors:    fields,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError - 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, "", nil)
}

// ValidationErrors - 400 с ошибками по полям.
func ValidationErrors(w http.ResponseWriter, message string, fields map[string][]string) {
	WriteError(w, http.StatusBadRequest, message, "", fields)
}

// NotFound - 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, "", nil)
}

// Unauthorized - 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, "", nil)
}

// Forbidden - 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, "", nil)
}

// Conflict - 409 операция невозможна в текущем состоянии.
func Conflict(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusConflict, message, details, nil)
}

// TooManyRequests - 429 превышен лимит запросов. Retry-After в секундах.
func TooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second).Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	WriteError(w, http.StatusTooManyRequests, message, "", nil)
}

// BadGateway - 502 backend недоступен.
func BadGateway(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusBadGateway, message, details, nil)
}

// InternalError - 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusInternalServerError, message, details, nil)
}
