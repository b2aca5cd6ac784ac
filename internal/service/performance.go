package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/perf"
)

// Действия POST /api/performance.
const (
	ActionClearMetrics    = "clear_metrics"
	ActionClearCache      = "clear_cache"
	ActionClearQueryCache = "clear_query_cache"
	ActionClearAll        = "clear_all"
)

// MsgInvalidPerfAction - неизвестное действие.
const MsgInvalidPerfAction = "Invalid action. Use: clear_metrics, clear_cache, clear_query_cache, or clear_all"

// DefaultPerfWindow - окно статистики по умолчанию.
const DefaultPerfWindow = time.Hour

// DBStatser отдаёт статистику пула соединений. Реализуется *sql.DB.
type DBStatser interface {
	Stats() sql.DBStats
}

// PoolStats - статистика пула соединений MySQL.
type PoolStats struct {
	MaxOpen       int    `json:"maxOpenConnections"`
	Open          int    `json:"openConnections"`
	InUse         int    `json:"inUse"`
	Idle          int    `json:"idle"`
	WaitCount     int64  `json:"waitCount"`
	WaitDuration  string `json:"waitDuration"`
	MaxIdleClosed int64  `json:"maxIdleClosed"`
	MaxLifeClosed int64  `json:"maxLifetimeClosed"`
}

// RuntimeStats - состояние процесса.
type RuntimeStats struct {
	GoVersion  string `json:"goVersion"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAllocBytes"`
	HeapSys    uint64 `json:"heapSysBytes"`
	Sys        uint64 `json:"sysBytes"`
	NumGC      uint32 `json:"numGC"`
	Uptime     string `json:"uptime"`
	UptimeSec  int64  `json:"uptimeSeconds"`
}

// CacheReport - статистика и состояние одного кэша.
type CacheReport struct {
	Stats  cache.Stats  `json:"stats"`
	Health cache.Health `json:"health"`
}

// PerformanceReport - ответ GET /api/performance.
type PerformanceReport struct {
	perf.Snapshot
	Database PoolStats     `json:"database"`
	Caches   []CacheReport `json:"caches"`
	Runtime  RuntimeStats  `json:"runtime"`
}

// PerformanceService - статистика производительности.
type PerformanceService struct {
	monitor    *perf.Monitor
	db         DBStatser
	apiCache   *cache.Cache
	queryCache *cache.Cache
	started    time.Time
	logger     *slog.Logger
}

// NewPerformanceService создаёт сервис. apiCache - кэш ответов
// (пользователи), queryCache - кэш результатов интроспекции схемы.
func NewPerformanceService(monitor *perf.Monitor, db DBStatser, apiCache, queryCache *cache.Cache, logger *slog.Logger) *PerformanceService {
	return &PerformanceService{
		monitor:    monitor,
		db:         db,
		apiCache:   apiCache,
		queryCache: queryCache,
		started:    time.Now(),
		logger:     logger.With(slog.String("component", "performance_service")),
	}
}

// Report собирает статистику за окно window.
func (s *PerformanceService) Report(ctx context.Context, window time.Duration) *PerformanceReport {
	if window <= 0 {
		window = DefaultPerfWindow
	}
	r := &PerformanceReport{
		Snapshot: s.monitor.Snapshot(window),
		Runtime:  s.runtimeStats(),
		Caches:   []CacheReport{},
	}
	if s.db != nil {
		st := s.db.Stats()
		r.Database = PoolStats{
			MaxOpen:       st.MaxOpenConnections,
			Open:          st.OpenConnections,
			InUse:         st.InUse,
			Idle:          st.Idle,
			WaitCount:     st.WaitCount,
			WaitDuration:  st.WaitDuration.String(),
			MaxIdleClosed: st.MaxIdleClosed,
			MaxLifeClosed: st.MaxLifetimeClosed,
		}
	}
	for _, c := range []*cache.Cache{s.apiCache, s.queryCache} {
		if c != nil {
			r.Caches = append(r.Caches, CacheReport{Stats: c.Stats(), Health: c.Health(ctx)})
		}
	}
	return r
}

func (s *PerformanceService) runtimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	up := time.Since(s.started)
	return RuntimeStats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		Uptime:     up.Round(time.Second).String(),
		UptimeSec:  int64(up.Seconds()),
	}
}

// Apply выполняет действие очистки и возвращает сообщение для ответа.
func (s *PerformanceService) Apply(ctx context.Context, action string) (string, error) {
	switch action {
	case ActionClearMetrics:
		s.clearMetrics()
	case ActionClearCache:
		clearCache(ctx, s.apiCache)
	case ActionClearQueryCache:
		clearCache(ctx, s.queryCache)
	case ActionClearAll:
		s.clearMetrics()
		clearCache(ctx, s.apiCache)
		clearCache(ctx, s.queryCache)
	default:
		return "", invalid(MsgInvalidPerfAction, nil)
	}
	s.logger.Info("Выполнено действие", slog.String("action", action))
	return fmt.Sprintf("Successfully executed: %s", action), nil
}

func (s *PerformanceService) clearMetrics() {
	s.monitor.Reset()
	for _, c := range []*cache.Cache{s.apiCache, s.queryCache} {
		if c != nil {
			c.ResetStats()
		}
	}
}

func clearCache(ctx context.Context, c *cache.Cache) {
	if c != nil {
		c.Clear(ctx)
	}
}
