// Пакет server - HTTP-сервер админки с graceful shutdown.
// Без TLS - HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mpd-concursos/concursos-admin/internal/api/handlers"
	"github.com/mpd-concursos/concursos-admin/internal/api/middleware"
	"github.com/mpd-concursos/concursos-admin/internal/config"
)

// Options - необязательные компоненты сервера.
type Options struct {
	// JWTAuth - проверка токенов /api; nil - без аутентификации.
	JWTAuth *middleware.JWTAuth
	// Recorder получает замеры запросов для /api/performance.
	Recorder middleware.RequestRecorder
	// Limiter - общий лимит запросов к /api.
	Limiter *middleware.RateLimiter
	// StrictLimiter - лимит на создание бэкапов и генерацию отчётов.
	StrictLimiter *middleware.RateLimiter
}

// Server - HTTP-сервер админки.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, opts Options) *Server {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     newRouter(logger, handler, opts),
		ReadTimeout: 30 * time.Second,
		// Создание бэкапа отвечает только после завершения mysqldump.
		WriteTimeout: max(60*time.Second, cfg.BackupTimeout+30*time.Second),
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

func newRouter(logger *slog.Logger, handler *handlers.APIHandler, opts Options) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware(opts.Recorder))
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без токена.
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	router.Route("/api", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		if opts.JWTAuth != nil {
			r.Use(opts.JWTAuth.Middleware())
			r.Use(middleware.RequireAdminForWrites())
		}

		var strict func(http.Handler) http.Handler
		if opts.StrictLimiter != nil {
			strict = opts.StrictLimiter.Middleware
		}
		handler.RegisterRoutes(r, strict)
	})

	return router
}

// Run запускает сервер и ожидает отмены ctx (SIGINT, SIGTERM в main).
// После отмены выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
