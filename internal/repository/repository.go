// Пакет repository - слой доступа к данным MySQL.
// Все запросы - чистый SQL через database/sql, без ORM.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound - запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict - конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: запись уже существует")
)

// DBTX - интерфейс для выполнения SQL-запросов.
// Реализуется как *sql.DB, так и *sql.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	db       *sql.DB
	observer QueryObserver
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
// observer может быть nil.
func NewTxRunner(db *sql.DB, observer QueryObserver) *TxRunner {
	return &TxRunner{db: db, observer: observer}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn - транзакция откатывается.
// При успехе - коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // откат после коммита - no-op

	var dbtx DBTX = tx
	if r.observer != nil {
		dbtx = Instrument(tx, r.observer)
	}

	if err := fn(dbtx); err != nil {
		return err
	}

	return tx.Commit()
}

// isDuplicateEntry проверяет, является ли ошибка нарушением уникальности MySQL.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 // ER_DUP_ENTRY
	}
	return false
}

// --- Преобразование NULL-значений ---

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullNonEmpty - пустая строка сохраняется как NULL.
func nullNonEmpty(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
