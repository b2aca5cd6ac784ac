// handler.go - основной обработчик API админки.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой;
// ответы пишутся в едином конверте {success, data, message, ..., timestamp}.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

// maxBodyBytes - предельный размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// Общие сообщения обработчиков.
const (
	msgInvalidJSON    = "Cuerpo de la solicitud inválido"
	msgInvalidParam   = "Parámetro inválido"
	msgInternalError  = "Error interno del servidor"
	msgBackendFailure = "Error al comunicarse con el servicio de backend"
)

// Services - сервисы, с которыми работают обработчики.
type Services struct {
	Contests     *service.ContestService
	Postulations *service.PostulationService
	Sessions     *service.ValidationSessions
	Documents    *service.DocumentService
	Backups      *service.BackupService
	Users        *service.UserService
	Schema       *service.SchemaService
	Performance  *service.PerformanceService
	Reports      *service.ReportService
	Dashboard    *service.DashboardService
}

// APIHandler - основной обработчик API.
type APIHandler struct {
	health *HealthHandler
	svc    Services
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		svc:    svc,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive - liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady - readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics - Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Конверт ответа ---

// Pagination - сведения о странице списка.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// envelope - успешный ответ API.
type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Total      *int        `json:"total,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	Cached     bool        `json:"cached,omitempty"`
	Timestamp  string      `json:"timestamp"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeEnvelope дополняет конверт признаком успеха и временем ответа.
func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	env.Success = true
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, status, env)
}

// writeData - 200 с данными и необязательным сообщением.
func writeData(w http.ResponseWriter, data any, message string) {
	writeEnvelope(w, http.StatusOK, envelope{Data: data, Message: message})
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500 с fallback.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, fallback, err.Error())
		return
	}

	switch {
	case errors.Is(svcErr.Kind, service.ErrValidation):
		apierrors.ValidationErrors(w, svcErr.Message, svcErr.Fields)
	case errors.Is(svcErr.Kind, service.ErrNotFound):
		apierrors.WriteError(w, http.StatusNotFound, svcErr.Message, svcErr.Details, nil)
	case errors.Is(svcErr.Kind, service.ErrForbidden):
		apierrors.Forbidden(w, svcErr.Message)
	case errors.Is(svcErr.Kind, service.ErrConflict), errors.Is(svcErr.Kind, service.ErrInProgress):
		apierrors.Conflict(w, svcErr.Message, svcErr.Details)
	case errors.Is(svcErr.Kind, service.ErrBackendUnavailable):
		h.logger.Warn("Backend недоступен",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.BadGateway(w, svcErr.Message, svcErr.Details)
	default:
		h.logger.Error("Ошибка операции",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, svcErr.Message, svcErr.Details)
	}
}

// --- Разбор запроса ---

// decodeJSON читает JSON-тело запроса. При ошибке отвечает 400
// и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, msgInvalidJSON, err.Error(), nil)
		return false
	}
	return true
}

// bindQuery разбирает необязательные query-параметры. dests - пары
// имя параметра → указатель на поле (*T или **T). При ошибке отвечает
// 400 и возвращает false.
func bindQuery(w http.ResponseWriter, q url.Values, dests map[string]any) bool {
	for name, dst := range dests {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dst); err != nil {
			apierrors.WriteError(w, http.StatusBadRequest, msgInvalidParam+": "+name, err.Error(), nil)
			return false
		}
	}
	return true
}

// pageParams нормализует page и limit: page >= 1, limit в [1, maxLimit],
// отсутствующий или неположительный limit - defLimit.
func pageParams(page, limit *int, defLimit, maxLimit int) (int, int) {
	p, l := 1, defLimit
	if page != nil && *page > 1 {
		p = *page
	}
	if limit != nil && *limit > 0 {
		l = min(*limit, maxLimit)
	}
	return p, l
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
