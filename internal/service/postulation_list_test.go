package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// queueBackend - backend с несколькими постулянтами в разных состояниях.
func queueBackend() *fakeBackend {
	return &fakeBackend{
		users: []model.User{
			{ID: "u-1", DNI: "11111111", FullName: "Ana Pérez", Email: "ana@correo.com"},
			{ID: "u-2", DNI: "22222222", FullName: "Bruno Díaz", Email: "bruno@correo.com"},
			{ID: "u-3", DNI: "33333333", FullName: "Carla Gómez"},
		},
		inscriptions: []model.BackendInscription{
			{ID: "ins-1", UserID: "u-1", ContestID: 7, State: model.InscriptionCompletedWithDocs, InscriptionDate: date("2026-03-02")},
			{ID: "ins-2", UserID: "u-2", State: model.InscriptionPending, InscriptionDate: date("2026-03-01"), CentroDeVida: "La Plata"},
			{ID: "ins-3", UserID: "u-3", State: model.InscriptionApproved, InscriptionDate: date("2026-02-01")},
			{ID: "ins-4", UserID: "u-x", State: model.InscriptionRejected},
			{ID: "ins-5", UserID: "u-4", UserDNI: "44444444", UserFullName: "Diego Ruiz", State: model.InscriptionActive},
		},
		documents: []model.Document{
			{ID: "a", FileName: "dni_frontal.pdf", UserDNI: "11111111", ValidationStatus: model.DocumentApproved},
			{ID: "b", FileName: "titulo.pdf", UserDNI: "11111111", ValidationStatus: model.DocumentRejected},
			{ID: "c", FileName: "constancia_cuil.pdf", UserDNI: "22222222", ValidationStatus: model.DocumentPending},
		},
	}
}

func newQueueService(b *fakeBackend) *PostulationService {
	contests := newFakeContests(&model.Contest{ID: 7, Title: "Defensor/a Civil", Position: strPtr("Defensor/a Civil")})
	return NewPostulationService(b, contests, nil, testLogger())
}

func TestPostulationList_PagesAndStats(t *testing.T) {
	svc := newQueueService(queueBackend())
	ctx := context.Background()

	res, err := svc.List(ctx, PostulationQuery{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := PostulationStats{Total: 5, CompletedWithDocs: 1, ValidationPending: 3, ValidationCompleted: 1, ValidationRejected: 1}
	if res.Stats != want {
		t.Errorf("stats = %+v, ожидали %+v", res.Stats, want)
	}
	// ins-4 без DNI не попадает в список.
	if res.Total != 4 || len(res.Postulations) != 2 {
		t.Fatalf("total=%d строк=%d", res.Total, len(res.Postulations))
	}

	ana := res.Postulations[0]
	if ana.DNI != "11111111" || ana.Contest.Title != "Defensor/a Civil" || ana.CentroDeVida != FallbackCentroDeVida {
		t.Errorf("строка 1 = %+v", ana)
	}
	if ana.Documents.Total != 2 || ana.Documents.Approved != 1 || ana.Documents.Rejected != 1 {
		t.Errorf("документы Ana = %+v", ana.Documents)
	}
	bruno := res.Postulations[1]
	if bruno.CentroDeVida != "La Plata" || bruno.Contest.Title != FallbackContestTitle || bruno.Documents.Pending != 1 {
		t.Errorf("строка 2 = %+v", bruno)
	}

	res, err = svc.List(ctx, PostulationQuery{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(res.Postulations) != 2 || res.Postulations[1].FullName != "Diego Ruiz" {
		t.Fatalf("страница 2 = %+v", res.Postulations)
	}
	if d := res.Postulations[1].Documents; d.Total != 0 || d.ValidationStatus != model.ValidationPending {
		t.Errorf("документы без совпадений = %+v", d)
	}

	res, _ = svc.List(ctx, PostulationQuery{Page: 5, PageSize: 2})
	if len(res.Postulations) != 0 || res.Total != 4 {
		t.Errorf("страница за концом: %+v", res)
	}
}

func TestPostulationList_Search(t *testing.T) {
	svc := newQueueService(queueBackend())

	tests := []struct {
		search string
		want   []string
	}{
		{"díaz", []string{"22222222"}},
		{"ANA@", []string{"11111111"}},
		{"4444", []string{"44444444"}},
		{"  ", []string{"11111111", "22222222", "33333333", "44444444"}},
		{"nadie", nil},
	}
	for _, tt := range tests {
		res, err := svc.List(context.Background(), PostulationQuery{Page: 1, PageSize: 10, Search: tt.search})
		if err != nil {
			t.Fatalf("%q: %v", tt.search, err)
		}
		var got []string
		for _, p := range res.Postulations {
			got = append(got, p.DNI)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) || res.Total != len(tt.want) {
			t.Errorf("%q: %v (total %d), ожидали %v", tt.search, got, res.Total, tt.want)
		}
		if res.Stats.Total != 5 {
			t.Errorf("%q: статистика должна считаться по всем инскрипциям: %+v", tt.search, res.Stats)
		}
	}
}

func TestPostulationList_OnlyStats(t *testing.T) {
	svc := newQueueService(queueBackend())

	res, err := svc.List(context.Background(), PostulationQuery{Page: 1, PageSize: 10, OnlyStats: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Postulations == nil || len(res.Postulations) != 0 {
		t.Errorf("postulations = %v", res.Postulations)
	}
	if res.Stats.Total != 5 || res.Total != 4 {
		t.Errorf("stats = %+v total = %d", res.Stats, res.Total)
	}
}

func TestPostulationList_BackendUnavailable(t *testing.T) {
	b := queueBackend()
	b.err = fmt.Errorf("список инскрипций: %w", backendclient.ErrUnavailable)
	svc := newQueueService(b)

	if _, err := svc.List(context.Background(), PostulationQuery{Page: 1, PageSize: 10}); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("List: ожидали ErrBackendUnavailable, получили %v", err)
	}
	if _, err := svc.Next(context.Background(), ""); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Next: ожидали ErrBackendUnavailable, получили %v", err)
	}
}

func TestPostulationNext(t *testing.T) {
	svc := newQueueService(queueBackend())
	ctx := context.Background()

	// Самая ранняя инскрипция в очереди - Bruno; ACTIVE и APPROVED не в очереди.
	res, err := svc.Next(ctx, "")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !res.HasNext || res.Postulation.DNI != "22222222" || res.TotalPending != 2 {
		t.Fatalf("next = %+v", res)
	}

	res, _ = svc.Next(ctx, "22222222")
	if !res.HasNext || res.Postulation.DNI != "11111111" || res.TotalPending != 1 {
		t.Errorf("next после Bruno = %+v", res)
	}
	if res.Postulation.Contest.Title != "Defensor/a Civil" {
		t.Errorf("конкурс = %+v", res.Postulation.Contest)
	}
}

func TestPostulationNext_OnlyCurrentLeft(t *testing.T) {
	b := queueBackend()
	b.inscriptions = b.inscriptions[1:2]
	svc := newQueueService(b)

	res, err := svc.Next(context.Background(), "22222222")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !res.HasNext || res.Postulation.DNI != "22222222" {
		t.Errorf("next = %+v", res)
	}
}

func TestPostulationNext_EmptyQueue(t *testing.T) {
	b := queueBackend()
	b.inscriptions = b.inscriptions[2:3]
	svc := newQueueService(b)

	res, err := svc.Next(context.Background(), "")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.HasNext || res.Postulation != nil || res.TotalPending != 0 {
		t.Errorf("next = %+v", res)
	}
}
