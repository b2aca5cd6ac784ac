package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// ContestRepository - интерфейс CRUD для таблицы contests.
type ContestRepository interface {
	// List возвращает страницу конкурсов, новые первыми.
	List(ctx context.Context, filter model.ContestFilter, limit, offset int) ([]*model.Contest, error)
	// Count возвращает количество конкурсов под фильтром.
	Count(ctx context.Context, filter model.ContestFilter) (int, error)
	// GetByID возвращает конкурс по ID.
	GetByID(ctx context.Context, id int64) (*model.Contest, error)
	// LatestActive возвращает последний конкурс в статусе ACTIVE.
	LatestActive(ctx context.Context) (*model.Contest, error)
	// Create создаёт конкурс и возвращает его ID.
	Create(ctx context.Context, c *model.Contest) (int64, error)
	// Update перезаписывает все поля конкурса.
	Update(ctx context.Context, c *model.Contest) error
	// Delete удаляет конкурс.
	Delete(ctx context.Context, id int64) error
	// CountInscriptions возвращает количество инскрипций конкурса.
	CountInscriptions(ctx context.Context, contestID int64) (int, error)
	// CountByStatus возвращает количество конкурсов по статусам.
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// contestRepo - реализация ContestRepository.
type contestRepo struct {
	db DBTX
}

// NewContestRepository создаёт репозиторий конкурсов.
func NewContestRepository(db DBTX) ContestRepository {
	return &contestRepo{db: db}
}

const contestColumns = `id, title, category, class_, department, position, functions, status,
			start_date, end_date, inscription_start_date, inscription_end_date,
			bases_url, description_url, created_at, updated_at`

// contestWhere строит параметризованное условие WHERE по фильтру.
func contestWhere(f model.ContestFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		conditions = append(conditions, "(title LIKE ? OR position LIKE ? OR functions LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.Department != "" {
		conditions = append(conditions, "department LIKE ?")
		args = append(args, "%"+f.Department+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *contestRepo) List(ctx context.Context, filter model.ContestFilter, limit, offset int) ([]*model.Contest, error) {
	where, args := contestWhere(filter)

	query := fmt.Sprintf(`
		SELECT %s
		FROM contests
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, contestColumns, where)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка конкурсов: %w", err)
	}
	defer rows.Close()

	result := []*model.Contest{}
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования конкурса: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *contestRepo) Count(ctx context.Context, filter model.ContestFilter) (int, error) {
	where, args := contestWhere(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) AS total FROM contests %s`, where)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта конкурсов: %w", err)
	}
	return count, nil
}

func (r *contestRepo) GetByID(ctx context.Context, id int64) (*model.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE id = ?`, contestColumns)

	c, err := scanContest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения конкурса: %w", err)
	}
	return c, nil
}

func (r *contestRepo) LatestActive(ctx context.Context) (*model.Contest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM contests
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT 1`, contestColumns)

	c, err := scanContest(r.db.QueryRowContext(ctx, query, model.ContestStatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения активного конкурса: %w", err)
	}
	return c, nil
}

func (r *contestRepo) Create(ctx context.Context, c *model.Contest) (int64, error) {
	query := `
		INSERT INTO contests (title, category, class_, department, position, functions, status,
			start_date, end_date, inscription_start_date, inscription_end_date,
			bases_url, description_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	res, err := r.db.ExecContext(ctx, query,
		c.Title, nullString(c.Category), nullString(c.Class), nullString(c.Department),
		nullString(c.Position), nullString(c.Functions), c.Status,
		nullTime(c.StartDate), nullTime(c.EndDate),
		nullTime(c.InscriptionStartDate), nullTime(c.InscriptionEndDate),
		nullNonEmpty(c.BasesURL), nullNonEmpty(c.DescriptionURL),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, fmt.Errorf("%w: конкурс уже существует", ErrConflict)
		}
		return 0, fmt.Errorf("ошибка создания конкурса: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения ID конкурса: %w", err)
	}
	return id, nil
}

// Update не проверяет RowsAffected: MySQL возвращает 0 и для строки
// без изменений. Существование проверяется до вызова.
func (r *contestRepo) Update(ctx context.Context, c *model.Contest) error {
	query := `
		UPDATE contests
		SET title = ?, category = ?, class_ = ?, department = ?, position = ?,
			functions = ?, status = ?, start_date = ?, end_date = ?,
			inscription_start_date = ?, inscription_end_date = ?,
			bases_url = ?, description_url = ?, updated_at = NOW()
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		c.Title, nullString(c.Category), nullString(c.Class), nullString(c.Department),
		nullString(c.Position), nullString(c.Functions), c.Status,
		nullTime(c.StartDate), nullTime(c.EndDate),
		nullTime(c.InscriptionStartDate), nullTime(c.InscriptionEndDate),
		nullNonEmpty(c.BasesURL), nullNonEmpty(c.DescriptionURL),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления конкурса: %w", err)
	}
	return nil
}

func (r *contestRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления конкурса: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка удаления конкурса: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *contestRepo) CountInscriptions(ctx context.Context, contestID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) AS count FROM inscriptions WHERE contest_id = ?`, contestID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта инскрипций: %w", err)
	}
	return count, nil
}

func (r *contestRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) AS count FROM contests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта конкурсов по статусам: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статуса конкурса: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// scanner - общий интерфейс *sql.Row и *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContest(s scanner) (*model.Contest, error) {
	var (
		c                                     model.Contest
		category, class, department, position sql.NullString
		functions, basesURL, descriptionURL   sql.NullString
		startDate, endDate, insStart, insEnd  sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.Title, &category, &class, &department, &position, &functions, &c.Status,
		&startDate, &endDate, &insStart, &insEnd,
		&basesURL, &descriptionURL, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Category = stringPtr(category)
	c.Class = stringPtr(class)
	c.Department = stringPtr(department)
	c.Position = stringPtr(position)
	c.Functions = stringPtr(functions)
	c.BasesURL = stringPtr(basesURL)
	c.DescriptionURL = stringPtr(descriptionURL)
	c.StartDate = timePtr(startDate)
	c.EndDate = timePtr(endDate)
	c.InscriptionStartDate = timePtr(insStart)
	c.InscriptionEndDate = timePtr(insEnd)
	return &c, nil
}
