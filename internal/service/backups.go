// backups.go - сервис резервного копирования: дамп MySQL, архив
// документов, проверка целостности, восстановление и offsite-копии.
// Одновременно выполняется не более одной операции, меняющей копии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mpd-concursos/concursos-admin/internal/backup"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

// Сообщения ответов по резервным копиям.
const (
	MsgBackupNotFound         = "Backup not found"
	MsgBackupNameRequired     = "Backup name is required"
	MsgBackupIDRequired       = "Backup ID is required"
	MsgBackupIntegrityFailed  = "Cannot restore backup with failed integrity check"
	MsgRestoreConfirmRequired = "Restore confirmation is required"
	MsgBackupInProgress       = "Another backup operation is in progress"
	MsgBackupCreateFailed     = "Failed to create backup"
	MsgBackupRestoreFailed    = "Failed to restore backup"
	MsgBackupDocsMissing      = "Backup does not include documents"
	MsgInvalidDocumentTypes   = "Invalid document types"
)

// Виды файлов копии для скачивания.
const (
	BackupFileDB        = "db"
	BackupFileDocuments = "documents"
)

var backupOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ca_backup_operations_total",
		Help: "Количество операций с резервными копиями",
	},
	[]string{"operation", "result"},
)

// Transactor выполняет функцию в транзакции. Реализуется *repository.TxRunner.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(tx repository.DBTX) error) error
}

// OffsiteStore - хранилище offsite-копий. Реализуется *backup.Offsite.
type OffsiteStore interface {
	Upload(ctx context.Context, backupID string, files ...string) (string, error)
	Delete(ctx context.Context, keyPrefix string, files ...string) error
}

var (
	_ Transactor   = (*repository.TxRunner)(nil)
	_ OffsiteStore = (*backup.Offsite)(nil)
)

// BackupDeps - зависимости сервиса бэкапов.
type BackupDeps struct {
	Repo     repository.BackupRepository
	Tx       Transactor
	Dumper   backup.Dumper
	Restorer backup.Restorer
	// Offsite - nil, если S3 не настроен.
	Offsite OffsiteStore
	// Dir - каталог файлов копий.
	Dir string
	// DocumentsRoot - корень хранилища документов для архивации.
	DocumentsRoot string
}

// CreateBackupInput - параметры создания копии.
type CreateBackupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// IncludeDocuments по умолчанию true.
	IncludeDocuments *bool    `json:"includeDocuments"`
	DocumentTypes    []string `json:"documentTypes"`
}

// RestoreInput - параметры восстановления.
type RestoreInput struct {
	BackupID       string `json:"backupId"`
	ConfirmRestore bool   `json:"confirmRestore"`
}

// BackupService - сервис резервных копий.
type BackupService struct {
	deps   BackupDeps
	logger *slog.Logger

	// op - одна операция создания/восстановления/удаления за раз.
	op sync.Mutex

	repoFor func(repository.DBTX) repository.BackupRepository
	now     func() time.Time
}

// NewBackupService создаёт сервис бэкапов.
func NewBackupService(deps BackupDeps, logger *slog.Logger) *BackupService {
	return &BackupService{
		deps:    deps,
		logger:  logger.With(slog.String("component", "backup_service")),
		repoFor: repository.NewBackupRepository,
		now:     time.Now,
	}
}

// Create создаёт копию: дамп БД и, если нужно, архив документов.
// Ошибка архивации документов не прерывает создание копии.
func (s *BackupService) Create(ctx context.Context, in CreateBackupInput) (*model.Backup, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(MsgBackupNameRequired, map[string][]string{"name": {MsgBackupNameRequired}})
	}
	includeDocs := in.IncludeDocuments == nil || *in.IncludeDocuments
	dirs, unknown := backup.ResolveDocumentDirs(in.DocumentTypes)
	if len(unknown) > 0 {
		return nil, invalid(MsgInvalidDocumentTypes, map[string][]string{
			"documentTypes": {"Tipos desconocidos: " + strings.Join(unknown, ", ")},
		})
	}

	if !s.op.TryLock() {
		return nil, &Error{Kind: ErrInProgress, Message: MsgBackupInProgress}
	}
	defer s.op.Unlock()

	if err := os.MkdirAll(s.deps.Dir, 0o755); err != nil {
		return nil, s.failed("create", fmt.Errorf("каталог бэкапов: %w", err))
	}

	now := s.now().UTC()
	id := "backup_" + backup.Timestamp(now) + "_" + uuid.NewString()[:8]
	b := &model.Backup{
		ID:            id,
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		CreatedAt:     now,
		Type:          model.BackupTypeFull,
		DocumentTypes: dirs,
		DBPath:        filepath.Join(s.deps.Dir, id+".sql"),
	}
	if b.DocumentTypes == nil {
		b.DocumentTypes = []string{}
	}

	if err := s.dump(ctx, b.DBPath); err != nil {
		return nil, s.failed("create", err)
	}

	if includeDocs {
		docsPath := filepath.Join(s.deps.Dir, id+"_documents.tar.gz")
		stats, err := backup.ArchiveDocuments(ctx, s.deps.DocumentsRoot, dirs, docsPath)
		if err != nil {
			s.logger.Warn("Архив документов не создан, копия продолжается без документов",
				slog.String("backup_id", id),
				slog.String("error", err.Error()),
			)
		} else {
			b.IncludesDocuments = true
			b.DocumentsPath = docsPath
			s.logger.Info("Архив документов создан",
				slog.String("backup_id", id),
				slog.Int("files", stats.Files),
				slog.Int64("bytes", stats.Bytes),
			)
		}
	}

	b.Integrity = model.IntegrityVerified
	for _, p := range b.Files() {
		if err := backup.Verify(p); err != nil {
			s.logger.Error("Проверка целостности не пройдена",
				slog.String("backup_id", id),
				slog.String("file", filepath.Base(p)),
				slog.String("error", err.Error()),
			)
			b.Integrity = model.IntegrityFailed
		}
		b.SizeBytes += fileSize(p)
	}
	b.Size = backup.FormatSize(b.SizeBytes)

	err := s.deps.Tx.RunInTx(ctx, func(tx repository.DBTX) error {
		return s.repoFor(tx).Create(ctx, b)
	})
	if err != nil {
		removeFiles(b.Files()...)
		return nil, s.failed("create", err)
	}

	s.uploadOffsite(ctx, b)

	backupOperations.WithLabelValues("create", "success").Inc()
	s.logger.Info("Резервная копия создана",
		slog.String("backup_id", id),
		slog.String("size", b.Size),
		slog.String("integrity", b.Integrity),
		slog.Bool("documents", b.IncludesDocuments),
	)
	return b, nil
}

func (s *BackupService) dump(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ошибка создания файла дампа: %w", err)
	}
	if err := s.deps.Dumper.Dump(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("ошибка дампа БД: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("ошибка записи дампа: %w", err)
	}
	return nil
}

// uploadOffsite копирует файлы в S3. Ошибка не делает копию неудачной.
func (s *BackupService) uploadOffsite(ctx context.Context, b *model.Backup) {
	if s.deps.Offsite == nil || b.Integrity != model.IntegrityVerified {
		return
	}
	key, err := s.deps.Offsite.Upload(ctx, b.ID, b.Files()...)
	if err != nil {
		backupOperations.WithLabelValues("offsite", "error").Inc()
		s.logger.Error("Ошибка загрузки offsite-копии",
			slog.String("backup_id", b.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.deps.Repo.SetOffsiteKey(ctx, b.ID, key); err != nil {
		s.logger.Error("Не удалось сохранить ключ offsite-копии",
			slog.String("backup_id", b.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.OffsiteKey = key
	backupOperations.WithLabelValues("offsite", "success").Inc()
}

// List возвращает копии из БД и файлы без записи, новые первыми.
func (s *BackupService) List(ctx context.Context) ([]*model.Backup, error) {
	items, err := s.deps.Repo.List(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(items)*2)
	for _, b := range items {
		b.Size = backup.FormatSize(b.SizeBytes)
		for _, p := range b.Files() {
			known[p] = true
		}
	}

	orphans, err := backup.ScanOrphans(s.deps.Dir, known)
	if err != nil {
		s.logger.Warn("Не удалось просканировать каталог бэкапов", slog.String("error", err.Error()))
	}
	items = append(items, orphans...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// Get возвращает копию по ID, включая файлы без записи в БД.
func (s *BackupService) Get(ctx context.Context, id string) (*model.Backup, error) {
	if id == "" {
		return nil, invalid(MsgBackupIDRequired, nil)
	}
	b, err := s.deps.Repo.GetByID(ctx, id)
	if err == nil {
		b.Size = backup.FormatSize(b.SizeBytes)
		return b, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	orphans, scanErr := backup.ScanOrphans(s.deps.Dir, nil)
	if scanErr != nil {
		return nil, scanErr
	}
	for _, o := range orphans {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, notFound(MsgBackupNotFound)
}

// Restore восстанавливает БД из дампа копии. Документы не
// восстанавливаются.
func (s *BackupService) Restore(ctx context.Context, in RestoreInput) (*model.Backup, error) {
	b, err := s.Get(ctx, in.BackupID)
	if err != nil {
		return nil, err
	}
	if b.Integrity != model.IntegrityVerified {
		return nil, invalid(MsgBackupIntegrityFailed, nil)
	}
	if !in.ConfirmRestore {
		return nil, invalid(MsgRestoreConfirmRequired, map[string][]string{
			"confirmRestore": {MsgRestoreConfirmRequired},
		})
	}
	if !strings.HasSuffix(b.DBPath, ".sql") {
		return nil, invalid(MsgBackupIntegrityFailed, nil)
	}

	if !s.op.TryLock() {
		return nil, &Error{Kind: ErrInProgress, Message: MsgBackupInProgress}
	}
	defer s.op.Unlock()

	f, err := os.Open(b.DBPath)
	if err != nil {
		return nil, s.failedOp("restore", fmt.Errorf("ошибка открытия дампа: %w", err))
	}
	defer f.Close()

	s.logger.Warn("Восстановление БД из резервной копии", slog.String("backup_id", b.ID))
	if err := s.deps.Restorer.Restore(ctx, f); err != nil {
		return nil, s.failedOp("restore", fmt.Errorf("ошибка восстановления БД: %w", err))
	}

	backupOperations.WithLabelValues("restore", "success").Inc()
	s.logger.Info("БД восстановлена", slog.String("backup_id", b.ID))
	return b, nil
}

// Delete удаляет файлы копии, offsite-копию и запись.
func (s *BackupService) Delete(ctx context.Context, id string) (*model.Backup, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.op.TryLock() {
		return nil, &Error{Kind: ErrInProgress, Message: MsgBackupInProgress}
	}
	defer s.op.Unlock()

	if b.OffsiteKey != "" && s.deps.Offsite != nil {
		if err := s.deps.Offsite.Delete(ctx, b.OffsiteKey, b.Files()...); err != nil {
			s.logger.Warn("Не удалось удалить offsite-копию",
				slog.String("backup_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, p := range b.Files() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Не удалось удалить файл копии",
				slog.String("file", p),
				slog.String("error", err.Error()),
			)
		}
	}

	if !b.Orphan {
		if err := s.deps.Repo.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	backupOperations.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Резервная копия удалена", slog.String("backup_id", id))
	return b, nil
}

// Verify заново проверяет файлы копии и сохраняет результат.
// Проверенный файл без записи добавляется в БД.
func (s *BackupService) Verify(ctx context.Context, id string) (*model.Backup, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	integrity := model.IntegrityVerified
	for _, p := range b.Files() {
		if err := backup.Verify(p); err != nil {
			s.logger.Warn("Проверка целостности не пройдена",
				slog.String("backup_id", id),
				slog.String("error", err.Error()),
			)
			integrity = model.IntegrityFailed
		}
	}
	b.Integrity = integrity

	switch {
	case !b.Orphan:
		if err := s.deps.Repo.UpdateIntegrity(ctx, id, integrity); err != nil {
			return nil, err
		}
	case integrity == model.IntegrityVerified:
		b.Orphan = false
		if err := s.deps.Repo.Create(ctx, b); err != nil {
			return nil, err
		}
		s.logger.Info("Файл копии добавлен в реестр", slog.String("backup_id", id))
	}
	return b, nil
}

// File возвращает путь к файлу копии для скачивания.
func (s *BackupService) File(ctx context.Context, id, kind string) (string, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	p := b.DBPath
	if kind == BackupFileDocuments {
		if b.DocumentsPath == "" {
			return "", notFound(MsgBackupDocsMissing)
		}
		p = b.DocumentsPath
	}
	if _, err := os.Stat(p); err != nil {
		return "", notFound(MsgBackupNotFound)
	}
	return p, nil
}

func (s *BackupService) failed(op string, err error) error {
	backupOperations.WithLabelValues(op, "error").Inc()
	s.logger.Error("Ошибка создания резервной копии", slog.String("error", err.Error()))
	return &Error{Kind: ErrInternal, Message: MsgBackupCreateFailed, Details: err.Error(), cause: err}
}

func (s *BackupService) failedOp(op string, err error) error {
	backupOperations.WithLabelValues(op, "error").Inc()
	s.logger.Error("Ошибка восстановления", slog.String("error", err.Error()))
	return &Error{Kind: ErrInternal, Message: MsgBackupRestoreFailed, Details: err.Error(), cause: err}
}

func fileSize(p string) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return info.Size()
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
