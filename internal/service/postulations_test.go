package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

const testDNI = "30111222"

func testBackend() *fakeBackend {
	return &fakeBackend{
		users: []model.User{
			{ID: "u-1", Username: "otro", DNI: "99999999"},
			{ID: "u-2", Username: testDNI, DNI: testDNI, FullName: "Ana Pérez"},
		},
		inscriptions: []model.BackendInscription{
			{ID: "ins-1", UserID: "u-2", ContestID: 7, State: model.InscriptionCompletedWithDocs},
		},
		documents: []model.Document{
			{ID: "d1", FileName: "dni_frontal.pdf", UserDNI: testDNI, ValidationStatus: model.DocumentApproved},
			{ID: "d2", FileName: "constancia_cuil.pdf", UserID: "u-2", FileSize: 2048, ValidationStatus: model.DocumentPending},
			{ID: "d3", FileName: "titulo.pdf", FilePath: testDNI + "/titulo.pdf", ValidationStatus: model.DocumentPending},
			{ID: "d4", FileName: "ajeno.pdf", UserDNI: "99999999"},
			{ID: "d5", FileName: "sin_dueno.pdf"},
		},
	}
}

func TestDocuments_Aggregation(t *testing.T) {
	contests := newFakeContests(&model.Contest{ID: 7, Title: "Defensor/a Civil", Position: strPtr("Defensor/a Civil")})
	svc := NewPostulationService(testBackend(), contests, fakeSizes{"d1": 1500}, testLogger())

	res, err := svc.Documents(context.Background(), testDNI)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}

	if len(res.Documents) != 3 {
		t.Fatalf("документов = %d, ожидали 3 (чужой и без владельца отброшены)", len(res.Documents))
	}
	byID := map[string]model.Document{}
	for _, d := range res.Documents {
		byID[d.ID] = d
	}

	if d := byID["d1"]; d.FileSize != 1500 || d.DocumentType != model.DocTypeDNIFront || !d.IsRequired {
		t.Errorf("d1 = %+v", d)
	}
	if d := byID["d1"]; d.FilePath != testDNI+"/dni_frontal.pdf" {
		t.Errorf("путь d1 = %q", d.FilePath)
	}
	if d := byID["d2"]; d.FileSize != 2048 || d.DocumentType != model.DocTypeCUIL {
		t.Errorf("d2 = %+v", d)
	}
	if d := byID["d3"]; d.DocumentType != model.DocTypeDegree {
		t.Errorf("тип d3 = %s", d.DocumentType)
	}

	if res.Stats.Total != 3 || res.Stats.Approved != 1 || res.Stats.ValidationStatus != model.ValidationPartial {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Postulant.Inscription == nil || res.Postulant.Inscription.ID != "ins-1" {
		t.Errorf("инскрипция = %+v", res.Postulant.Inscription)
	}
	if res.Postulant.Contest.ID != 7 || res.Postulant.Contest.Title != "Defensor/a Civil" {
		t.Errorf("конкурс = %+v", res.Postulant.Contest)
	}
	if res.Postulant.CentroDeVida != FallbackCentroDeVida {
		t.Errorf("centroDeVida = %q", res.Postulant.CentroDeVida)
	}
}

func TestDocuments_ContestFallback(t *testing.T) {
	svc := NewPostulationService(testBackend(), newFakeContests(), nil, testLogger())

	res, err := svc.Documents(context.Background(), testDNI)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	c := res.Postulant.Contest
	if c.Title != FallbackContestTitle || c.Position != FallbackContestPosition {
		t.Errorf("ожидали запасные значения, получили %+v", c)
	}
}

func TestDocuments_LatestActiveContest(t *testing.T) {
	contests := newFakeContests()
	contests.active = &model.Contest{ID: 3, Title: "Asesor/a de Incapaces", Status: model.ContestStatusActive}
	svc := NewPostulationService(testBackend(), contests, nil, testLogger())

	res, err := svc.Documents(context.Background(), testDNI)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if res.Postulant.Contest.ID != 3 || res.Postulant.Contest.Position != FallbackContestPosition {
		t.Errorf("конкурс = %+v", res.Postulant.Contest)
	}
}

// TestDocuments_ContestLookupErrorLogged: ошибка чтения конкурса
// попадает в лог, даже когда ответ строится по активному конкурсу.
func TestDocuments_ContestLookupErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	contests := newFakeContests()
	contests.readErr = errors.New("db down")
	contests.active = &model.Contest{ID: 3, Title: "Asesor/a de Incapaces", Status: model.ContestStatusActive}
	svc := NewPostulationService(testBackend(), contests, nil, logger)

	res, err := svc.Documents(context.Background(), testDNI)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if res.Postulant.Contest.ID != 3 {
		t.Errorf("конкурс = %+v", res.Postulant.Contest)
	}
	out := buf.String()
	if !strings.Contains(out, "db down") || !strings.Contains(out, "contest_id=7") {
		t.Errorf("в логе нет ошибки GetByID: %s", out)
	}
}

func TestDocuments_UserNotFound(t *testing.T) {
	svc := NewPostulationService(testBackend(), newFakeContests(), nil, testLogger())

	_, err := svc.Documents(context.Background(), "11111111")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestDocuments_BackendUnavailable(t *testing.T) {
	b := testBackend()
	b.err = fmt.Errorf("список пользователей: %w", backendclient.ErrUnavailable)
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	_, err := svc.Documents(context.Background(), testDNI)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("ожидали ErrBackendUnavailable, получили %v", err)
	}
}

func TestDocuments_Empty(t *testing.T) {
	b := testBackend()
	b.documents = nil
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	res, err := svc.Documents(context.Background(), testDNI)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(res.Documents) != 0 || res.Stats.ValidationStatus != model.ValidationPending {
		t.Errorf("ожидали пустой список в PENDING, получили %+v", res.Stats)
	}
}

func TestOwnsDocument(t *testing.T) {
	user := &model.User{ID: "u-2"}
	tests := []struct {
		name string
		doc  model.Document
		want bool
	}{
		{"совпадает DNI", model.Document{UserDNI: testDNI}, true},
		{"другой DNI", model.Document{UserDNI: "1", UserID: "u-2"}, false},
		{"совпадает ID пользователя", model.Document{UserID: "u-2"}, true},
		{"другой ID", model.Document{UserID: "u-9", FilePath: testDNI + "/a.pdf"}, false},
		{"DNI в пути", model.Document{FilePath: "docs/" + testDNI + "/a.pdf"}, true},
		{"нет признаков", model.Document{FileName: "a.pdf"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ownsDocument(tt.doc, user, testDNI); got != tt.want {
				t.Errorf("ownsDocument = %v, ожидали %v", got, tt.want)
			}
		})
	}
}

func TestApprove_RequiresApprovedDocuments(t *testing.T) {
	b := testBackend()
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	_, err := svc.Approve(context.Background(), testDNI, DecisionInput{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидали ErrConflict, получили %v", err)
	}
	if len(b.changes) != 0 {
		t.Error("состояние не должно меняться")
	}

	for i := range b.documents {
		b.documents[i].ValidationStatus = model.DocumentApproved
	}
	ins, err := svc.Approve(context.Background(), testDNI, DecisionInput{})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if ins.State != model.InscriptionApproved {
		t.Errorf("state = %s", ins.State)
	}
	if len(b.changes) != 1 || b.changes[0] != (stateChange{ID: "ins-1", State: model.InscriptionApproved, Note: NoteApproved}) {
		t.Errorf("changes = %+v", b.changes)
	}
}

func TestRejectAndStartValidation(t *testing.T) {
	b := testBackend()
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())
	ctx := context.Background()

	if _, err := svc.Reject(ctx, testDNI, DecisionInput{Note: "Falta documentación"}); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.StartValidation(ctx, testDNI, DecisionInput{InscriptionID: "ins-x"}); err != nil {
		t.Fatalf("StartValidation: %v", err)
	}

	want := []stateChange{
		{ID: "ins-1", State: model.InscriptionRejected, Note: "Falta documentación"},
		{ID: "ins-x", State: model.InscriptionPending, Note: NoteValidationStart},
	}
	if len(b.changes) != 2 || b.changes[0] != want[0] || b.changes[1] != want[1] {
		t.Errorf("changes = %+v", b.changes)
	}
}

func TestReject_NoInscription(t *testing.T) {
	b := testBackend()
	b.inscriptions = nil
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	_, err := svc.Reject(context.Background(), testDNI, DecisionInput{})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Message != MsgInscriptionRequired {
		t.Fatalf("ожидали %q, получили %v", MsgInscriptionRequired, err)
	}
}

func TestRevert(t *testing.T) {
	b := testBackend()
	b.inscriptions[0].State = model.InscriptionRejected
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	res, err := svc.Revert(context.Background(), testDNI, RevertInput{RevertedBy: "mgarcia"})
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if res.PreviousState != model.InscriptionRejected || res.Inscription.State != model.InscriptionPending {
		t.Errorf("result = %+v", res)
	}
	wantNote := "Estado revertido desde REJECTED por mgarcia - Revisión manual"
	if len(b.changes) != 1 || b.changes[0].Note != wantNote {
		t.Errorf("changes = %+v", b.changes)
	}
}

func TestRevert_NotRevertible(t *testing.T) {
	b := testBackend()
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	_, err := svc.Revert(context.Background(), testDNI, RevertInput{RevertedBy: "admin"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидали ErrConflict, получили %v", err)
	}
	var svcErr *Error
	if errors.As(err, &svcErr) && !strings.Contains(svcErr.Details, model.InscriptionCompletedWithDocs) {
		t.Errorf("details = %q", svcErr.Details)
	}
}

func TestRevert_UnknownInscription(t *testing.T) {
	b := testBackend()
	b.inscriptions[0].State = model.InscriptionApproved
	svc := NewPostulationService(b, newFakeContests(), nil, testLogger())

	_, err := svc.Revert(context.Background(), testDNI, RevertInput{InscriptionID: "nope"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}
