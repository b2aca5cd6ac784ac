package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// ReportRepository - интерфейс для таблицы generated_reports.
type ReportRepository interface {
	// Create сохраняет запись в статусе GENERATING.
	Create(ctx context.Context, r *model.GeneratedReport) error
	// MarkCompleted переводит отчёт в COMPLETED.
	MarkCompleted(ctx context.Context, id, filePath string, fileSize int64, recordCount int) error
	// MarkFailed переводит отчёт в FAILED с сообщением об ошибке.
	MarkFailed(ctx context.Context, id, message string) error
	// GetByID возвращает отчёт по ID.
	GetByID(ctx context.Context, id string) (*model.GeneratedReport, error)
	// List возвращает страницу отчётов, новые первыми.
	List(ctx context.Context, filter model.ReportFilter, limit, offset int) ([]*model.GeneratedReport, error)
	// Count возвращает количество отчётов под фильтром.
	Count(ctx context.Context, filter model.ReportFilter) (int, error)
	// IncrementDownloads увеличивает счётчик скачиваний.
	IncrementDownloads(ctx context.Context, id string) error
}

// reportRepo - реализация ReportRepository.
type reportRepo struct {
	db DBTX
}

// NewReportRepository создаёт репозиторий отчётов.
func NewReportRepository(db DBTX) ReportRepository {
	return &reportRepo{db: db}
}

const reportColumns = `id, report_type, format, file_name, generated_by, parameters, status,
			file_path, file_size, record_count, download_count, error_message,
			created_at, updated_at, completed_at`

func (r *reportRepo) Create(ctx context.Context, rep *model.GeneratedReport) error {
	query := `
		INSERT INTO generated_reports (id, report_type, format, file_name, generated_by,
			parameters, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	var params any
	if len(rep.Parameters) > 0 {
		params = string(rep.Parameters)
	}

	_, err := r.db.ExecContext(ctx, query,
		rep.ID, rep.ReportType, rep.Format, rep.FileName, rep.GeneratedBy, params, rep.Status,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("%w: отчёт %s уже существует", ErrConflict, rep.ID)
		}
		return fmt.Errorf("ошибка создания записи отчёта: %w", err)
	}
	return nil
}

func (r *reportRepo) MarkCompleted(ctx context.Context, id, filePath string, fileSize int64, recordCount int) error {
	query := `
		UPDATE generated_reports
		SET status = ?, file_path = ?, file_size = ?, record_count = ?,
			completed_at = NOW(), updated_at = NOW()
		WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, model.ReportCompleted, filePath, fileSize, recordCount, id); err != nil {
		return fmt.Errorf("ошибка обновления статуса отчёта: %w", err)
	}
	return nil
}

func (r *reportRepo) MarkFailed(ctx context.Context, id, message string) error {
	query := `
		UPDATE generated_reports
		SET status = ?, error_message = ?, updated_at = NOW()
		WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, model.ReportFailed, message, id); err != nil {
		return fmt.Errorf("ошибка обновления статуса отчёта: %w", err)
	}
	return nil
}

func (r *reportRepo) GetByID(ctx context.Context, id string) (*model.GeneratedReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM generated_reports WHERE id = ?`, reportColumns)

	rep, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения отчёта: %w", err)
	}
	return rep, nil
}

func reportWhere(f model.ReportFilter) (string, []any) {
	var conditions []string
	var args []any
	if f.ReportType != "" {
		conditions = append(conditions, "report_type = ?")
		args = append(args, f.ReportType)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *reportRepo) List(ctx context.Context, filter model.ReportFilter, limit, offset int) ([]*model.GeneratedReport, error) {
	where, args := reportWhere(filter)
	query := fmt.Sprintf(`
		SELECT %s FROM generated_reports
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, reportColumns, where)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка отчётов: %w", err)
	}
	defer rows.Close()

	result := []*model.GeneratedReport{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отчёта: %w", err)
		}
		result = append(result, rep)
	}
	return result, rows.Err()
}

func (r *reportRepo) Count(ctx context.Context, filter model.ReportFilter) (int, error) {
	where, args := reportWhere(filter)
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_reports `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта отчётов: %w", err)
	}
	return count, nil
}

func (r *reportRepo) IncrementDownloads(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE generated_reports SET download_count = download_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчика скачиваний: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(s scanner) (*model.GeneratedReport, error) {
	var (
		rep                            model.GeneratedReport
		params, filePath, errorMessage sql.NullString
		completedAt                    sql.NullTime
	)
	err := s.Scan(
		&rep.ID, &rep.ReportType, &rep.Format, &rep.FileName, &rep.GeneratedBy, &params, &rep.Status,
		&filePath, &rep.FileSize, &rep.RecordCount, &rep.DownloadCount, &errorMessage,
		&rep.CreatedAt, &rep.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if params.Valid {
		rep.Parameters = []byte(params.String)
	}
	rep.FilePath = filePath.String
	rep.ErrorMessage = errorMessage.String
	rep.CompletedAt = timePtr(completedAt)
	return &rep, nil
}
