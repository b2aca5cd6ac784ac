package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// BackupRepository - интерфейс для таблицы backups (метаданные резервных копий).
type BackupRepository interface {
	// Create сохраняет метаданные новой копии.
	Create(ctx context.Context, b *model.Backup) error
	// GetByID возвращает копию по ID.
	GetByID(ctx context.Context, id string) (*model.Backup, error)
	// List возвращает все копии, новые первыми.
	List(ctx context.Context) ([]*model.Backup, error)
	// UpdateIntegrity обновляет статус целостности.
	UpdateIntegrity(ctx context.Context, id, integrity string) error
	// SetOffsiteKey сохраняет ключ offsite-копии.
	SetOffsiteKey(ctx context.Context, id, key string) error
	// Delete удаляет запись.
	Delete(ctx context.Context, id string) error
}

// backupRepo - реализация BackupRepository.
type backupRepo struct {
	db DBTX
}

// NewBackupRepository создаёт репозиторий метаданных бэкапов.
func NewBackupRepository(db DBTX) BackupRepository {
	return &backupRepo{db: db}
}

const backupColumns = `id, name, description, created_at, size_bytes, integrity, backup_type,
			includes_documents, document_types, db_path, documents_path, offsite_key`

func (r *backupRepo) Create(ctx context.Context, b *model.Backup) error {
	docTypes, err := json.Marshal(b.DocumentTypes)
	if err != nil {
		return fmt.Errorf("ошибка сериализации типов документов: %w", err)
	}

	query := `
		INSERT INTO backups (id, name, description, created_at, size_bytes, integrity, backup_type,
			includes_documents, document_types, db_path, documents_path, offsite_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		b.ID, b.Name, nullNonEmpty(&b.Description), b.CreatedAt, b.SizeBytes, b.Integrity, b.Type,
		b.IncludesDocuments, string(docTypes), b.DBPath,
		nullNonEmpty(&b.DocumentsPath), nullNonEmpty(&b.OffsiteKey),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("%w: бэкап %s уже существует", ErrConflict, b.ID)
		}
		return fmt.Errorf("ошибка сохранения метаданных бэкапа: %w", err)
	}
	return nil
}

func (r *backupRepo) GetByID(ctx context.Context, id string) (*model.Backup, error) {
	query := fmt.Sprintf(`SELECT %s FROM backups WHERE id = ?`, backupColumns)

	b, err := scanBackup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения бэкапа: %w", err)
	}
	return b, nil
}

func (r *backupRepo) List(ctx context.Context) ([]*model.Backup, error) {
	query := fmt.Sprintf(`SELECT %s FROM backups ORDER BY created_at DESC`, backupColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка бэкапов: %w", err)
	}
	defer rows.Close()

	result := []*model.Backup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования бэкапа: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *backupRepo) UpdateIntegrity(ctx context.Context, id, integrity string) error {
	return r.exec(ctx, `UPDATE backups SET integrity = ? WHERE id = ?`, integrity, id)
}

func (r *backupRepo) SetOffsiteKey(ctx context.Context, id, key string) error {
	return r.exec(ctx, `UPDATE backups SET offsite_key = ? WHERE id = ?`, key, id)
}

func (r *backupRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления бэкапа: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *backupRepo) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка обновления бэкапа: %w", err)
	}
	return nil
}

func scanBackup(s scanner) (*model.Backup, error) {
	var (
		b                                 model.Backup
		description, docsPath, offsiteKey sql.NullString
		docTypes                          sql.NullString
	)
	err := s.Scan(
		&b.ID, &b.Name, &description, &b.CreatedAt, &b.SizeBytes, &b.Integrity, &b.Type,
		&b.IncludesDocuments, &docTypes, &b.DBPath, &docsPath, &offsiteKey,
	)
	if err != nil {
		return nil, err
	}

	b.Description = description.String
	b.DocumentsPath = docsPath.String
	b.OffsiteKey = offsiteKey.String
	b.DocumentTypes = []string{}
	if docTypes.Valid && docTypes.String != "" {
		if err := json.Unmarshal([]byte(docTypes.String), &b.DocumentTypes); err != nil {
			return nil, fmt.Errorf("некорректный document_types: %w", err)
		}
		if b.DocumentTypes == nil {
			b.DocumentTypes = []string{}
		}
	}
	return &b, nil
}
