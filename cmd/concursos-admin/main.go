// Точка входа concursos-admin - административного сервиса конкурсов.
// Загружает конфигурацию, применяет миграции MySQL, создаёт клиент backend,
// хранилище документов, сервисный слой и API handlers, запускает фоновые
// задачи (очистка сессий валидации, topologymetrics) и HTTP-сервер
// с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mpd-concursos/concursos-admin/internal/api/handlers"
	"github.com/mpd-concursos/concursos-admin/internal/api/middleware"
	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/backup"
	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/config"
	"github.com/mpd-concursos/concursos-admin/internal/database"
	"github.com/mpd-concursos/concursos-admin/internal/docstore"
	"github.com/mpd-concursos/concursos-admin/internal/perf"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
	"github.com/mpd-concursos/concursos-admin/internal/server"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

const (
	// Кэш пользователей живёт недолго: backend остаётся источником истины.
	usersCacheTTL = 30 * time.Second
	// Размер кольцевого буфера замеров производительности.
	perfSamples = 2000
	// Интервал очистки просроченных сессий валидации.
	sessionSweepInterval = 5 * time.Minute
	// Интервал обновления JWKS.
	jwksRefreshInterval = 15 * time.Minute
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("concursos-admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if !cfg.AuthEnabled() {
		logger.Warn("CA_JWT_JWKS_URL не задана, API работает без аутентификации")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к MySQL
	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к MySQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// 5. Монитор производительности и инструментированный доступ к БД
	monitor := perf.New(perfSamples, cfg.DBSlowQueryThreshold)
	dbtx := repository.Instrument(db, monitor)
	txRunner := repository.NewTxRunner(db, monitor)

	// 6. Кэши (Redis опционален, без него - только in-process LRU)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		logger.Info("Redis подключён для кэша", slog.String("addr", cfg.RedisAddr))
	}
	usersCache := cache.New("users", cfg.CacheSize, usersCacheTTL, rdb, logger)
	schemaCache := cache.New("schema", cfg.CacheSize, cfg.CacheTTL, rdb, logger)

	// 7. Клиент backend
	backendClient := backendclient.New(
		cfg.BackendURL,
		cfg.BackendUsername,
		cfg.BackendPassword,
		&http.Client{Timeout: cfg.BackendTimeout},
		logger,
	)
	logger.Info("Клиент backend создан", slog.String("url", cfg.BackendURL))

	// 8. Хранилище документов
	store := docstore.New(cfg.DocumentBasePaths(), logger)

	// 9. Repositories
	contestRepo := repository.NewContestRepository(dbtx)
	backupRepo := repository.NewBackupRepository(dbtx)
	reportRepo := repository.NewReportRepository(dbtx)
	reportDataRepo := repository.NewReportDataRepository(dbtx)
	schemaRepo := repository.NewSchemaRepository(dbtx)

	// 10. Services
	mysqlTool := backup.NewMySQLTool(backup.MySQLConfig{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Database:        cfg.DBName,
		DumpBin:         cfg.MysqldumpBin,
		ClientBin:       cfg.MysqlBin,
		DockerContainer: cfg.BackupDockerContainer,
		Timeout:         cfg.BackupTimeout,
	})

	deps := service.BackupDeps{
		Repo:          backupRepo,
		Tx:            txRunner,
		Dumper:        mysqlTool,
		Restorer:      mysqlTool,
		Dir:           cfg.BackupPath,
		DocumentsRoot: cfg.DocumentsPath,
	}
	if cfg.OffsiteEnabled() {
		offsite, offErr := backup.NewOffsite(backup.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Prefix:       cfg.S3Prefix,
			AgeRecipient: cfg.BackupAgeRecipient,
		}, logger)
		if offErr != nil {
			logger.Error("Ошибка настройки offsite-копий", slog.String("error", offErr.Error()))
			os.Exit(1)
		}
		deps.Offsite = offsite
	}

	postulationsSvc := service.NewPostulationService(backendClient, contestRepo, store, logger)
	sessions := service.NewValidationSessions(postulationsSvc, backendClient, service.DefaultSessionTTL, logger)

	svc := handlers.Services{
		Contests:     service.NewContestService(contestRepo, logger),
		Postulations: postulationsSvc,
		Sessions:     sessions,
		Documents:    service.NewDocumentService(store, postulationsSvc, backendClient, logger),
		Backups:      service.NewBackupService(deps, logger),
		Users:        service.NewUserService(backendClient, usersCache, logger),
		Schema:       service.NewSchemaService(schemaRepo, schemaCache, logger),
		Performance:  service.NewPerformanceService(monitor, db, usersCache, schemaCache, logger),
		Reports:      service.NewReportService(reportRepo, reportDataRepo, backendClient, cfg.ReportsPath, logger),
		// Сводка делит кэш с пользователями: изменение пользователя
		// сбрасывает и её.
		Dashboard:    service.NewDashboardService(contestRepo, backendClient, usersCache, logger),
	}

	// 11. Фоновые задачи
	go sessions.Run(ctx, sessionSweepInterval)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	strictLimiter := middleware.NewPerMinuteRateLimiter(cfg.SensitiveRateLimitPerMinute)
	go limiter.Cleanup(ctx)
	go strictLimiter.Cleanup(ctx)

	// 11.1 topologymetrics - мониторинг зависимостей (MySQL + backend)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "concursos-admin",
		Group:         cfg.DephealthGroup,
		DB:            db,
		DBHost:        cfg.DBHost,
		DBPort:        cfg.DBPort,
		DBName:        cfg.DBName,
		BackendURL:    cfg.BackendURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. JWT middleware
	opts := server.Options{
		Recorder:      monitor,
		Limiter:       limiter,
		StrictLimiter: strictLimiter,
	}
	if cfg.AuthEnabled() {
		jwtAuth, jwtErr := middleware.NewJWTAuth(cfg.JWTJWKSURL, jwksRefreshInterval, middleware.JWTOptions{
			Issuer:     cfg.JWTIssuer,
			RolesClaim: cfg.JWTRolesClaim,
			AdminRoles: cfg.JWTAdminRoles,
			Leeway:     cfg.JWTLeeway,
		}, logger)
		if jwtErr != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", jwtErr.Error()))
			os.Exit(1)
		}
		opts.JWTAuth = jwtAuth
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}

	// 13. Readiness checkers (MySQL + backend) и API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(db), backendClient)
	apiHandler := handlers.NewAPIHandler(healthHandler, svc, logger)

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, opts)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("concursos-admin остановлен")
}
