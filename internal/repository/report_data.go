package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ContestSummaryRow - строка отчёта contests-summary.
type ContestSummaryRow struct {
	ID                   int64
	Title                string
	Category             string
	Position             string
	Status               string
	InscriptionStartDate *time.Time
	InscriptionEndDate   *time.Time
	Inscriptions         int
}

// InscriptionCountRow - количество инскрипций конкурса по состояниям.
type InscriptionCountRow struct {
	ContestID    int64
	ContestTitle string
	State        string
	Count        int
}

// ReportDataRepository - выборки из MySQL для отчётов.
type ReportDataRepository interface {
	// ContestsSummary возвращает конкурсы с количеством инскрипций.
	ContestsSummary(ctx context.Context, status string) ([]ContestSummaryRow, error)
	// InscriptionsByContest возвращает количество инскрипций по конкурсам
	// и состояниям. contestID == 0 - все конкурсы.
	InscriptionsByContest(ctx context.Context, contestID int64) ([]InscriptionCountRow, error)
}

// reportDataRepo - реализация ReportDataRepository.
type reportDataRepo struct {
	db DBTX
}

// NewReportDataRepository создаёт репозиторий выборок для отчётов.
func NewReportDataRepository(db DBTX) ReportDataRepository {
	return &reportDataRepo{db: db}
}

func (r *reportDataRepo) ContestsSummary(ctx context.Context, status string) ([]ContestSummaryRow, error) {
	query := `
		SELECT c.id, c.title, COALESCE(c.category, ''), COALESCE(c.position, ''), c.status,
			c.inscription_start_date, c.inscription_end_date, COUNT(i.id) AS inscriptions
		FROM contests c
		LEFT JOIN inscriptions i ON i.contest_id = c.id`
	var args []any
	if status != "" {
		query += ` WHERE c.status = ?`
		args = append(args, status)
	}
	query += ` GROUP BY c.id ORDER BY c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки сводки конкурсов: %w", err)
	}
	defer rows.Close()

	var result []ContestSummaryRow
	for rows.Next() {
		var (
			row              ContestSummaryRow
			insStart, insEnd sql.NullTime
		)
		if err := rows.Scan(&row.ID, &row.Title, &row.Category, &row.Position, &row.Status,
			&insStart, &insEnd, &row.Inscriptions); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сводки конкурсов: %w", err)
		}
		row.InscriptionStartDate = timePtr(insStart)
		row.InscriptionEndDate = timePtr(insEnd)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *reportDataRepo) InscriptionsByContest(ctx context.Context, contestID int64) ([]InscriptionCountRow, error) {
	query := `
		SELECT c.id, c.title, i.state, COUNT(*) AS total
		FROM inscriptions i
		JOIN contests c ON c.id = i.contest_id`
	var args []any
	if contestID > 0 {
		query += ` WHERE c.id = ?`
		args = append(args, contestID)
	}
	query += ` GROUP BY c.id, c.title, i.state ORDER BY c.id, i.state`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки инскрипций по конкурсам: %w", err)
	}
	defer rows.Close()

	var result []InscriptionCountRow
	for rows.Next() {
		var row InscriptionCountRow
		if err := rows.Scan(&row.ContestID, &row.ContestTitle, &row.State, &row.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования инскрипций: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
