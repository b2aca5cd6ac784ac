package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dbQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ca_db_query_duration_seconds",
		Help:    "Длительность SQL-запросов в секундах",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	},
	[]string{"operation", "status"},
)

// QueryObserver получает сведения о каждом выполненном запросе.
// Реализуется монитором производительности.
type QueryObserver interface {
	RecordQuery(query string, duration time.Duration, err error)
}

// instrumentedDB - DBTX, измеряющий длительность запросов.
type instrumentedDB struct {
	next     DBTX
	observer QueryObserver
}

// Instrument оборачивает DBTX: каждая операция попадает в histogram
// ca_db_query_duration_seconds и передаётся observer (если не nil).
func Instrument(db DBTX, observer QueryObserver) DBTX {
	return &instrumentedDB{next: db, observer: observer}
}

func (d *instrumentedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := d.next.ExecContext(ctx, query, args...)
	d.record(query, start, err)
	return res, err
}

func (d *instrumentedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.next.QueryContext(ctx, query, args...)
	d.record(query, start, err)
	return rows, err
}

func (d *instrumentedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := d.next.QueryRowContext(ctx, query, args...)
	d.record(query, start, row.Err())
	return row
}

func (d *instrumentedDB) record(query string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "ok"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	} else {
		err = nil
	}
	dbQueryDuration.WithLabelValues(queryOperation(query), status).Observe(elapsed.Seconds())
	if d.observer != nil {
		d.observer.RecordQuery(compactQuery(query), elapsed, err)
	}
}

// queryOperation возвращает первое ключевое слово запроса (SELECT, INSERT...)
// для низкой кардинальности метки.
func queryOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	op := strings.ToUpper(fields[0])
	switch op {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "SHOW":
		return op
	default:
		return "other"
	}
}

// compactQuery схлопывает пробельные символы запроса в одну строку.
func compactQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
