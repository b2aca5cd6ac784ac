// Пакет config - загрузка и валидация конфигурации Concursos Admin
// из переменных окружения (префикс CA_).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Concursos Admin.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- MySQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Максимум открытых соединений в пуле
	DBMaxOpenConns int
	// Максимум простаивающих соединений
	DBMaxIdleConns int
	// Время жизни соединения
	DBConnMaxLifetime time.Duration
	// Порог медленного запроса для монитора производительности
	DBSlowQueryThreshold time.Duration

	// --- Backend (внешний сервис пользователей/инскрипций/документов) ---

	// Базовый URL backend API (например, http://backend:8080/api)
	BackendURL string
	// Учётные данные для POST /auth/login
	BackendUsername string
	BackendPassword string
	// Таймаут HTTP-запросов к backend
	BackendTimeout time.Duration

	// --- Документы ---

	// Базовые каталоги документов в порядке приоритета поиска:
	// основной, legacy, резервная копия.
	DocumentsPath       string
	LegacyDocumentsPath string
	BackupDocumentsPath string

	// --- Резервные копии ---

	// Каталог для файлов резервных копий
	BackupPath string
	// Бинарники mysqldump и mysql
	MysqldumpBin string
	MysqlBin     string
	// Имя Docker-контейнера MySQL (если задано - команды идут через docker exec)
	BackupDockerContainer string
	// Таймаут дампа/восстановления
	BackupTimeout time.Duration

	// --- Offsite-копии (S3, опционально) ---

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
	// age-получатель для шифрования offsite-копий (age1...)
	BackupAgeRecipient string

	// --- Отчёты ---

	// Каталог для сгенерированных отчётов
	ReportsPath string

	// --- Кэш ---

	// Размер LRU-кэша (количество ключей)
	CacheSize int
	// TTL записей кэша по умолчанию
	CacheTTL time.Duration
	// Адрес Redis (пусто - только in-memory кэш)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Rate limiting ---

	// Запросов в секунду на IP для /api/*
	RateLimitRPS float64
	// Размер burst для /api/*
	RateLimitBurst int
	// Запросов в минуту на IP для тяжёлых операций (бэкапы, отчёты)
	SensitiveRateLimitPerMinute int

	// --- JWT (опционально) ---

	// URL JWKS endpoint (пусто - аутентификация отключена)
	JWTJWKSURL string
	// Ожидаемый issuer JWT
	JWTIssuer string
	// Claim с ролями
	JWTRolesClaim string
	// Роли, дающие право на изменяющие операции (через запятую)
	JWTAdminRoles []string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("CA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CA_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("CA_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- MySQL ---

	cfg.DBHost, err = getEnvRequired("CA_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("CA_DB_PORT", 3306)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("CA_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("CA_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("CA_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBMaxOpenConns, err = getEnvInt("CA_DB_MAX_OPEN_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_MAX_OPEN_CONNS: %w", err)
	}
	cfg.DBMaxIdleConns, err = getEnvInt("CA_DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_MAX_IDLE_CONNS: %w", err)
	}
	cfg.DBConnMaxLifetime, err = getEnvDuration("CA_DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_CONN_MAX_LIFETIME: %w", err)
	}
	cfg.DBSlowQueryThreshold, err = getEnvDuration("CA_DB_SLOW_QUERY_THRESHOLD", time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_SLOW_QUERY_THRESHOLD: %w", err)
	}

	// --- Backend ---

	cfg.BackendURL, err = getEnvRequired("CA_BACKEND_URL")
	if err != nil {
		return nil, err
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.BackendUsername, err = getEnvRequired("CA_BACKEND_USERNAME")
	if err != nil {
		return nil, err
	}
	cfg.BackendPassword, err = getEnvRequired("CA_BACKEND_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.BackendTimeout, err = getEnvDuration("CA_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_BACKEND_TIMEOUT: %w", err)
	}

	// --- Документы ---

	cfg.DocumentsPath = getEnvDefault("CA_DOCUMENTS_PATH", "/app/storage/documents")
	cfg.LegacyDocumentsPath = getEnvDefault("CA_LEGACY_DOCUMENTS_PATH", "")
	cfg.BackupDocumentsPath = getEnvDefault("CA_BACKUP_DOCUMENTS_PATH", "")

	// --- Резервные копии ---

	cfg.BackupPath = getEnvDefault("CA_BACKUP_PATH", "/opt/mpd-monitor/backups")
	cfg.MysqldumpBin = getEnvDefault("CA_MYSQLDUMP_BIN", "mysqldump")
	cfg.MysqlBin = getEnvDefault("CA_MYSQL_BIN", "mysql")
	cfg.BackupDockerContainer = getEnvDefault("CA_BACKUP_DOCKER_CONTAINER", "")
	cfg.BackupTimeout, err = getEnvDuration("CA_BACKUP_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CA_BACKUP_TIMEOUT: %w", err)
	}

	cfg.S3Endpoint = getEnvDefault("CA_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("CA_S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnvDefault("CA_S3_BUCKET", "")
	cfg.S3AccessKey = getEnvDefault("CA_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvDefault("CA_S3_SECRET_KEY", "")
	cfg.S3Prefix = strings.Trim(getEnvDefault("CA_S3_PREFIX", "concursos-backups"), "/")
	cfg.BackupAgeRecipient = getEnvDefault("CA_BACKUP_AGE_RECIPIENT", "")
	if cfg.S3Bucket != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, fmt.Errorf("CA_S3_BUCKET задан, но CA_S3_ACCESS_KEY/CA_S3_SECRET_KEY не заданы")
	}
	if cfg.BackupAgeRecipient != "" && !strings.HasPrefix(cfg.BackupAgeRecipient, "age1") {
		return nil, fmt.Errorf("CA_BACKUP_AGE_RECIPIENT: ожидается X25519-получатель age1...")
	}

	// --- Отчёты ---

	cfg.ReportsPath = getEnvDefault("CA_REPORTS_PATH", "/app/storage/reports")

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("CA_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CA_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("CA_CACHE_SIZE: значение %d должно быть положительным", cfg.CacheSize)
	}
	cfg.CacheTTL, err = getEnvDuration("CA_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CA_CACHE_TTL: %w", err)
	}
	cfg.RedisAddr = getEnvDefault("CA_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("CA_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("CA_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("CA_REDIS_DB: %w", err)
	}

	// --- Rate limiting ---

	cfg.RateLimitRPS, err = getEnvFloat("CA_RATE_LIMIT_RPS", 1)
	if err != nil {
		return nil, fmt.Errorf("CA_RATE_LIMIT_RPS: %w", err)
	}
	cfg.RateLimitBurst, err = getEnvInt("CA_RATE_LIMIT_BURST", 60)
	if err != nil {
		return nil, fmt.Errorf("CA_RATE_LIMIT_BURST: %w", err)
	}
	cfg.SensitiveRateLimitPerMinute, err = getEnvInt("CA_SENSITIVE_RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("CA_SENSITIVE_RATE_LIMIT_PER_MINUTE: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("CA_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("CA_JWT_ISSUER", "")
	cfg.JWTRolesClaim = getEnvDefault("CA_JWT_ROLES_CLAIM", "roles")
	cfg.JWTAdminRoles = parseCSV(getEnvDefault("CA_JWT_ADMIN_ROLES", "ROLE_ADMIN"))
	cfg.JWTLeeway, err = getEnvDuration("CA_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_JWT_LEEWAY: %w", err)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("CA_DEPHEALTH_GROUP", "concursos")
	cfg.DephealthCheckInterval, err = getEnvDuration("CA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN go-sql-driver/mysql.
// parseTime=true - DATETIME сканируется в time.Time.
func (c *Config) DatabaseDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.DBUser
	mc.Passwd = c.DBPassword
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.DBHost, c.DBPort)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// MigrateURL возвращает URL для golang-migrate (драйвер mysql).
func (c *Config) MigrateURL() string {
	return "mysql://" + c.DatabaseDSN() + "&multiStatements=true"
}

// DocumentBasePaths возвращает непустые каталоги документов в порядке поиска.
func (c *Config) DocumentBasePaths() []string {
	var paths []string
	for _, p := range []string{c.DocumentsPath, c.LegacyDocumentsPath, c.BackupDocumentsPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// OffsiteEnabled - настроено ли копирование бэкапов в S3.
func (c *Config) OffsiteEnabled() bool {
	return c.S3Bucket != ""
}

// AuthEnabled - включена ли JWT-аутентификация API.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("некорректное положительное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
