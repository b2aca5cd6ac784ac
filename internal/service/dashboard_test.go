package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

func newTestDashboard(b *fakeBackend, contests *fakeContests) (*DashboardService, *cache.Cache) {
	c := cache.New("users", 10, time.Minute, nil, testLogger())
	return NewDashboardService(contests, b, c, testLogger()), c
}

func dashboardContests() *fakeContests {
	return newFakeContests(
		&model.Contest{ID: 1, Status: model.ContestStatusActive},
		&model.Contest{ID: 2, Status: model.ContestStatusActive},
		&model.Contest{ID: 3, Status: model.ContestStatusDraft},
	)
}

func TestDashboard_Stats(t *testing.T) {
	b := queueBackend()
	b.users[0].Status = model.UserStatusActive
	b.users[1].Status = model.UserStatusActive
	b.users[2].Status = model.UserStatusBlocked
	b.docStats = backendclient.DocumentStatistics{Total: 10, Pending: 4, Approved: 5, Rejected: 1}
	svc, _ := newTestDashboard(b, dashboardContests())

	res, cached, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if cached || len(res.Unavailable) != 0 {
		t.Fatalf("cached=%v unavailable=%v", cached, res.Unavailable)
	}
	if res.Contests.Total != 3 || res.Contests.Active != 2 || res.Contests.ByStatus[model.ContestStatusDraft] != 1 {
		t.Errorf("contests = %+v", res.Contests)
	}
	if res.Inscriptions.Total != 5 || res.Inscriptions.PendingValidation != 3 || res.Inscriptions.ByState[model.InscriptionApproved] != 1 {
		t.Errorf("inscriptions = %+v", res.Inscriptions)
	}
	if res.Users.Total != 3 || res.Users.ByStatus[model.UserStatusActive] != 2 || res.Users.ByStatus[model.UserStatusBlocked] != 1 {
		t.Errorf("users = %+v", res.Users)
	}
	if res.Documents.Total != 10 || res.Documents.Approved != 5 {
		t.Errorf("documents = %+v", res.Documents)
	}

	// Повторный запрос берётся из кэша, backend не вызывается.
	listed := b.listed
	res2, cached, err := svc.Stats(context.Background())
	if err != nil || !cached {
		t.Fatalf("второй запрос: cached=%v err=%v", cached, err)
	}
	if b.listed != listed || res2.Contests.Total != 3 {
		t.Errorf("ожидали ответ из кэша: listed %d→%d, %+v", listed, b.listed, res2.Contests)
	}
}

func TestDashboard_BackendDown(t *testing.T) {
	b := queueBackend()
	b.err = fmt.Errorf("login: %w", backendclient.ErrUnavailable)
	svc, c := newTestDashboard(b, dashboardContests())

	res, cached, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := []string{DashboardDocuments, DashboardInscriptions, DashboardUsers}
	if cached || !slices.Equal(res.Unavailable, want) {
		t.Errorf("unavailable = %v, ожидали %v", res.Unavailable, want)
	}
	if res.Contests == nil || res.Contests.Total != 3 {
		t.Errorf("конкурсы из базы должны остаться: %+v", res.Contests)
	}
	if len(c.Keys()) != 0 {
		t.Errorf("неполная сводка не должна кэшироваться: %v", c.Keys())
	}
}

func TestDashboard_AllSectionsDown(t *testing.T) {
	b := queueBackend()
	b.err = fmt.Errorf("login: %w", backendclient.ErrUnavailable)
	contests := dashboardContests()
	contests.readErr = errors.New("db down")
	svc, _ := newTestDashboard(b, contests)

	_, _, err := svc.Stats(context.Background())
	if err == nil {
		t.Fatal("ожидали ошибку")
	}
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("ожидали *Error, получили %T", err)
	}
}
