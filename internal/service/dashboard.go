// dashboard.go - сводные показатели панели: конкурсы из локальной
// таблицы, инскрипции, пользователи и документы из backend. Разделы
// собираются параллельно; недоступный раздел пропускается и
// перечисляется в Unavailable. Результат кэшируется.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

// Разделы панели.
const (
	DashboardContests     = "contests"
	DashboardInscriptions = "inscriptions"
	DashboardUsers        = "users"
	DashboardDocuments    = "documents"

	dashboardSections = 4
)

// MsgDashboardFailed - сводка панели не получена.
const MsgDashboardFailed = "No se pudieron obtener las estadísticas del panel"

// dashboardCacheKey - ключ сводки в кэше.
const dashboardCacheKey = "dashboard-stats"

// ContestCounts - конкурсы по статусам.
type ContestCounts struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	ByStatus map[string]int `json:"byStatus"`
}

// InscriptionCounts - инскрипции по состояниям.
type InscriptionCounts struct {
	Total             int            `json:"total"`
	PendingValidation int            `json:"pendingValidation"`
	ByState           map[string]int `json:"byState"`
}

// UserCounts - пользователи по статусам.
type UserCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

// DashboardStats - сводка панели.
type DashboardStats struct {
	Contests     *ContestCounts                    `json:"contests,omitempty"`
	Inscriptions *InscriptionCounts                `json:"inscriptions,omitempty"`
	Users        *UserCounts                       `json:"users,omitempty"`
	Documents    *backendclient.DocumentStatistics `json:"documents,omitempty"`
	Unavailable  []string                          `json:"unavailable,omitempty"`
	GeneratedAt  time.Time                         `json:"generatedAt"`
}

// DashboardService - сервис сводки панели.
type DashboardService struct {
	contests repository.ContestRepository
	backend  Backend
	cache    *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewDashboardService создаёт сервис сводки.
func NewDashboardService(
	contests repository.ContestRepository,
	backend Backend,
	c *cache.Cache,
	logger *slog.Logger,
) *DashboardService {
	return &DashboardService{
		contests: contests,
		backend:  backend,
		cache:    c,
		logger:   logger.With(slog.String("component", "dashboard_service")),
		now:      time.Now,
	}
}

// Stats возвращает сводку. Ошибка только если недоступны все разделы.
// Частичная сводка не кэшируется.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, bool, error) {
	var cached DashboardStats
	if s.cache.Get(ctx, dashboardCacheKey, &cached) {
		return &cached, true, nil
	}

	res := &DashboardStats{GeneratedAt: s.now().UTC()}
	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(section string, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.Unavailable = append(res.Unavailable, section)
		if firstErr == nil {
			firstErr = err
		}
		s.logger.Warn("Раздел сводки недоступен",
			slog.String("section", section),
			slog.String("error", err.Error()),
		)
	}

	// Ошибки разделов не отменяют остальные: g.Go всегда возвращает nil.
	var g errgroup.Group
	g.Go(func() error {
		counts, err := s.contests.CountByStatus(ctx)
		if err != nil {
			fail(DashboardContests, err)
			return nil
		}
		c := &ContestCounts{ByStatus: counts, Active: counts[model.ContestStatusActive]}
		for _, n := range counts {
			c.Total += n
		}
		res.Contests = c
		return nil
	})
	g.Go(func() error {
		page, err := s.backend.ListInscriptions(ctx, backendclient.InscriptionQuery{})
		if err != nil {
			fail(DashboardInscriptions, err)
			return nil
		}
		st := postulationStats(page.Content)
		c := &InscriptionCounts{
			Total:             max(page.TotalElements, len(page.Content)),
			PendingValidation: st.ValidationPending,
			ByState:           map[string]int{},
		}
		for _, ins := range page.Content {
			c.ByState[ins.State]++
		}
		res.Inscriptions = c
		return nil
	})
	g.Go(func() error {
		page, err := s.backend.ListUsers(ctx, model.UserFilter{Size: userLookupSize})
		if err != nil {
			fail(DashboardUsers, err)
			return nil
		}
		c := &UserCounts{Total: max(page.TotalElements, len(page.Content)), ByStatus: map[string]int{}}
		for _, u := range page.Content {
			c.ByStatus[u.Status]++
		}
		res.Users = c
		return nil
	})
	g.Go(func() error {
		st, err := s.backend.DocumentStats(ctx)
		if err != nil {
			fail(DashboardDocuments, err)
			return nil
		}
		res.Documents = st
		return nil
	})
	_ = g.Wait()
	slices.Sort(res.Unavailable)

	if len(res.Unavailable) == dashboardSections {
		return nil, false, dashboardError(firstErr)
	}
	if len(res.Unavailable) == 0 {
		s.cache.Set(ctx, dashboardCacheKey, res)
	}
	return res, false, nil
}

// dashboardError: ошибки backend переводятся как обычно, остальные
// (база данных) оборачиваются как внутренние.
func dashboardError(err error) error {
	if errors.Is(err, backendclient.ErrUnavailable) {
		return backendError("сводка панели", err, "")
	}
	return &Error{Kind: ErrInternal, Message: MsgDashboardFailed, cause: err}
}
