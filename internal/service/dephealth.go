// dephealth.go - интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Админка мониторит две зависимости:
//   - MySQL - SQL checker через существующий *sql.DB (connection pool mode, critical)
//   - backend - HTTP checker к корню API backend (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health - состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds - задержка проверки
//   - app_dependency_status - категория статуса
//   - app_dependency_status_detail - детальный статус
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для backend
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/mysqlcheck"  // MySQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// Имена зависимостей в метриках.
const (
	DepMySQL   = "mysql"
	DepBackend = "backend"
)

// DephealthConfig - параметры мониторинга.
type DephealthConfig struct {
	// ServiceID - имя вершины графа текущего приложения.
	ServiceID string
	Group     string
	DB        *sql.DB
	DBHost    string
	DBPort    int
	DBName    string
	// BackendURL - базовый URL backend (с /api).
	BackendURL    string
	CheckInterval time.Duration
}

// DephealthService - сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	backendPath, err := backendHealthPath(cfg.BackendURL)
	if err != nil {
		return nil, err
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(DepMySQL, dephealth.TypeMySQL,
			mysqlcheck.New(mysqlcheck.WithDB(cfg.DB)),
			dephealth.FromURL(mysqlURL(cfg.DBHost, cfg.DBPort, cfg.DBName)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP(DepBackend,
			dephealth.FromURL(cfg.BackendURL),
			dephealth.WithHTTPHealthPath(backendPath),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// mysqlURL строит URL для меток зависимости (не для подключения).
func mysqlURL(host string, port int, name string) string {
	u := url.URL{
		Scheme: "mysql",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + name,
	}
	return u.String()
}

// backendHealthPath - путь, по которому проверяется backend. У backend
// нет отдельного /health, поэтому проверяется путь базового URL API.
func backendHealthPath(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("некорректный URL backend: %q", raw)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (MySQL + backend)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ - имя зависимости, значение - true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
