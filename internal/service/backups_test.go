package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

const validDump = "-- MySQL dump 10.13  Distrib 8.0.36\n" +
	"CREATE TABLE contests (id INT);\n" +
	"-- Dump completed on 2026-05-01 10:00:00\n"

type fakeDumper struct {
	out string
	err error
}

func (d fakeDumper) Dump(_ context.Context, w io.Writer) error {
	if d.err != nil {
		return d.err
	}
	_, err := io.WriteString(w, d.out)
	return err
}

type fakeRestorer struct {
	got string
}

func (r *fakeRestorer) Restore(_ context.Context, in io.Reader) error {
	b, err := io.ReadAll(in)
	r.got = string(b)
	return err
}

type fakeBackupRepo struct {
	mu    sync.Mutex
	items map[string]*model.Backup
	err   error
}

func newFakeBackupRepo() *fakeBackupRepo {
	return &fakeBackupRepo{items: map[string]*model.Backup{}}
}

func (r *fakeBackupRepo) Create(_ context.Context, b *model.Backup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cp := *b
	r.items[b.ID] = &cp
	return nil
}

func (r *fakeBackupRepo) GetByID(_ context.Context, id string) (*model.Backup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBackupRepo) List(context.Context) ([]*model.Backup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Backup
	for _, b := range r.items {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeBackupRepo) UpdateIntegrity(_ context.Context, id, integrity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id].Integrity = integrity
	return nil
}

func (r *fakeBackupRepo) SetOffsiteKey(_ context.Context, id, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id].OffsiteKey = key
	return nil
}

func (r *fakeBackupRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// fakeTx выполняет функцию без транзакции.
type fakeTx struct{ calls int }

func (t *fakeTx) RunInTx(_ context.Context, fn func(tx repository.DBTX) error) error {
	t.calls++
	return fn(nil)
}

type fakeOffsite struct {
	uploaded []string
	deleted  string
}

func (o *fakeOffsite) Upload(_ context.Context, id string, files ...string) (string, error) {
	for _, f := range files {
		o.uploaded = append(o.uploaded, filepath.Base(f))
	}
	return "backups/" + id, nil
}

func (o *fakeOffsite) Delete(_ context.Context, key string, _ ...string) error {
	o.deleted = key
	return nil
}

type backupFixture struct {
	svc      *BackupService
	repo     *fakeBackupRepo
	tx       *fakeTx
	restorer *fakeRestorer
	offsite  *fakeOffsite
	dir      string
}

func newBackupFixture(t *testing.T, dumper fakeDumper) *backupFixture {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "storage")
	for name, content := range map[string]string{
		"documents/30111222/dni.pdf":    "pdf",
		"cv-documents/30111222/cv.pdf":  "cv",
		"profile-images/30111222/a.png": "png",
	} {
		p := filepath.Join(docs, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f := &backupFixture{
		repo:     newFakeBackupRepo(),
		tx:       &fakeTx{},
		restorer: &fakeRestorer{},
		offsite:  &fakeOffsite{},
		dir:      filepath.Join(root, "backups"),
	}
	f.svc = NewBackupService(BackupDeps{
		Repo:          f.repo,
		Tx:            f.tx,
		Dumper:        dumper,
		Restorer:      f.restorer,
		Offsite:       f.offsite,
		Dir:           f.dir,
		DocumentsRoot: docs,
	}, testLogger())
	f.svc.repoFor = func(repository.DBTX) repository.BackupRepository { return f.repo }
	return f
}

func TestBackupService_Create(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})

	b, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "nocturno", DocumentTypes: []string{"documents"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Integrity != model.IntegrityVerified || !b.IncludesDocuments {
		t.Errorf("backup = %+v", b)
	}
	if !strings.HasPrefix(b.ID, "backup_") || !strings.HasSuffix(b.DBPath, ".sql") {
		t.Errorf("id = %s path = %s", b.ID, b.DBPath)
	}
	if b.SizeBytes <= int64(len(validDump)) || b.Size == "" {
		t.Errorf("размер = %d (%s)", b.SizeBytes, b.Size)
	}
	if len(b.DocumentTypes) != 1 || b.DocumentTypes[0] != "documents" {
		t.Errorf("типы = %v", b.DocumentTypes)
	}
	if f.tx.calls != 1 {
		t.Errorf("транзакций = %d", f.tx.calls)
	}
	stored, err := f.repo.GetByID(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("запись не сохранена: %v", err)
	}
	if stored.OffsiteKey != "backups/"+b.ID || len(f.offsite.uploaded) != 2 {
		t.Errorf("offsite: key=%q files=%v", stored.OffsiteKey, f.offsite.uploaded)
	}
}

func TestBackupService_CreateValidation(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})

	if _, err := f.svc.Create(context.Background(), CreateBackupInput{Name: " "}); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое имя: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x", DocumentTypes: []string{"videos"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестный тип: %v", err)
	}
}

func TestBackupService_CreateDumpFailure(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{err: errors.New("Access denied")})

	_, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x"})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Message != MsgBackupCreateFailed || !strings.Contains(svcErr.Details, "Access denied") {
		t.Fatalf("ожидали ошибку создания, получили %v", err)
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 0 {
		t.Errorf("остались частичные файлы: %d", len(entries))
	}
}

func TestBackupService_CreateWithoutDocumentsRoot(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})
	f.svc.deps.DocumentsRoot = filepath.Join(f.dir, "missing")

	b, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.IncludesDocuments || b.DocumentsPath != "" {
		t.Errorf("документы не должны попасть в копию: %+v", b)
	}
}

func TestBackupService_InvalidDumpFailsIntegrity(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: "CREATE TABLE x (id INT);\n"})
	no := false

	b, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x", IncludeDocuments: &no})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Integrity != model.IntegrityFailed {
		t.Errorf("integrity = %s", b.Integrity)
	}
	if len(f.offsite.uploaded) != 0 {
		t.Error("непроверенная копия не должна уходить в offsite")
	}

	_, err = f.svc.Restore(context.Background(), RestoreInput{BackupID: b.ID, ConfirmRestore: true})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Message != MsgBackupIntegrityFailed {
		t.Errorf("ожидали отказ по целостности, получили %v", err)
	}
}

func TestBackupService_Restore(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})
	no := false
	b, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x", IncludeDocuments: &no})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Restore(context.Background(), RestoreInput{BackupID: "nope", ConfirmRestore: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный ID: %v", err)
	}
	var svcErr *Error
	_, err = f.svc.Restore(context.Background(), RestoreInput{BackupID: b.ID})
	if !errors.As(err, &svcErr) || svcErr.Message != MsgRestoreConfirmRequired {
		t.Errorf("без подтверждения: %v", err)
	}

	if _, err := f.svc.Restore(context.Background(), RestoreInput{BackupID: b.ID, ConfirmRestore: true}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if f.restorer.got != validDump {
		t.Errorf("в mysql передано %q", f.restorer.got)
	}
}

func TestBackupService_ListWithOrphans(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})
	no := false
	b, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x", IncludeDocuments: &no})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	orphan := filepath.Join(f.dir, "manual_dump.sql")
	if err := os.WriteFile(orphan, []byte(validDump), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(orphan, old, old)

	items, err := f.svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].ID != b.ID || !items[1].Orphan || items[1].Integrity != model.IntegrityPending {
		t.Fatalf("items = %+v", items)
	}

	// Проверка добавляет файл в реестр.
	v, err := f.svc.Verify(context.Background(), "manual_dump")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Integrity != model.IntegrityVerified || v.Orphan {
		t.Errorf("verify = %+v", v)
	}
	if _, err := f.repo.GetByID(context.Background(), "manual_dump"); err != nil {
		t.Errorf("файл не добавлен в реестр: %v", err)
	}
}

func TestBackupService_DeleteAndFile(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})
	b, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p, err := f.svc.File(context.Background(), b.ID, BackupFileDocuments)
	if err != nil || !strings.HasSuffix(p, ".tar.gz") {
		t.Fatalf("File: %s %v", p, err)
	}

	if _, err := f.svc.Delete(context.Background(), b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(b.DBPath); !os.IsNotExist(err) {
		t.Error("файл дампа не удалён")
	}
	if f.offsite.deleted != "backups/"+b.ID {
		t.Errorf("offsite удалён с ключом %q", f.offsite.deleted)
	}
	if _, err := f.svc.Delete(context.Background(), b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: %v", err)
	}
	if _, err := f.svc.Delete(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой ID: %v", err)
	}
}

func TestBackupService_OneOperationAtATime(t *testing.T) {
	f := newBackupFixture(t, fakeDumper{out: validDump})
	f.svc.op.Lock()
	defer f.svc.op.Unlock()

	_, err := f.svc.Create(context.Background(), CreateBackupInput{Name: "x"})
	if !errors.Is(err, ErrInProgress) {
		t.Errorf("ожидали ErrInProgress, получили %v", err)
	}
}
