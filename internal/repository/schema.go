package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TableInfo - описание таблицы из information_schema.TABLES.
type TableInfo struct {
	Name          string     `json:"name"`
	Engine        string     `json:"engine"`
	Rows          int64      `json:"rows"`
	DataLength    int64      `json:"dataLength"`
	IndexLength   int64      `json:"indexLength"`
	AutoIncrement *int64     `json:"autoIncrement,omitempty"`
	Collation     string     `json:"collation"`
	Comment       string     `json:"comment,omitempty"`
	CreateTime    *time.Time `json:"createTime,omitempty"`
	UpdateTime    *time.Time `json:"updateTime,omitempty"`
}

// ColumnInfo - описание столбца.
type ColumnInfo struct {
	Table    string  `json:"table"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
	Key      string  `json:"key,omitempty"`
	Extra    string  `json:"extra,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

// ForeignKeyInfo - внешний ключ.
type ForeignKeyInfo struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	Column     string `json:"column"`
	RefTable   string `json:"referencedTable"`
	RefColumn  string `json:"referencedColumn"`
	UpdateRule string `json:"updateRule"`
	DeleteRule string `json:"deleteRule"`
}

// IndexInfo - столбец индекса.
type IndexInfo struct {
	Table      string `json:"table"`
	Name       string `json:"name"`
	Column     string `json:"column"`
	SeqInIndex int    `json:"seqInIndex"`
	Unique     bool   `json:"unique"`
	Type       string `json:"type"`
}

// DatabaseMeta - общие сведения о базе.
type DatabaseMeta struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Charset   string `json:"charset"`
	Collation string `json:"collation"`
}

// SchemaRepository - интроспекция схемы текущей базы.
type SchemaRepository interface {
	Meta(ctx context.Context) (*DatabaseMeta, error)
	Tables(ctx context.Context) ([]TableInfo, error)
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)
	ForeignKeys(ctx context.Context, table string) ([]ForeignKeyInfo, error)
	Indexes(ctx context.Context, table string) ([]IndexInfo, error)
	// OrphanCount возвращает количество строк, ссылающихся по внешнему
	// ключу на несуществующую запись.
	OrphanCount(ctx context.Context, fk ForeignKeyInfo) (int64, error)
}

// schemaRepo - реализация SchemaRepository.
type schemaRepo struct {
	db DBTX
}

// NewSchemaRepository создаёт репозиторий интроспекции схемы.
func NewSchemaRepository(db DBTX) SchemaRepository {
	return &schemaRepo{db: db}
}

func (r *schemaRepo) Meta(ctx context.Context) (*DatabaseMeta, error) {
	query := `
		SELECT SCHEMA_NAME, VERSION(), DEFAULT_CHARACTER_SET_NAME, DEFAULT_COLLATION_NAME
		FROM information_schema.SCHEMATA
		WHERE SCHEMA_NAME = DATABASE()`

	m := &DatabaseMeta{}
	if err := r.db.QueryRowContext(ctx, query).Scan(&m.Name, &m.Version, &m.Charset, &m.Collation); err != nil {
		return nil, fmt.Errorf("ошибка получения сведений о БД: %w", err)
	}
	return m, nil
}

func (r *schemaRepo) Tables(ctx context.Context) ([]TableInfo, error) {
	query := `
		SELECT TABLE_NAME, COALESCE(ENGINE, ''), COALESCE(TABLE_ROWS, 0),
			COALESCE(DATA_LENGTH, 0), COALESCE(INDEX_LENGTH, 0), AUTO_INCREMENT,
			COALESCE(TABLE_COLLATION, ''), COALESCE(TABLE_COMMENT, ''), CREATE_TIME, UPDATE_TIME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка таблиц: %w", err)
	}
	defer rows.Close()

	var result []TableInfo
	for rows.Next() {
		var (
			t                      TableInfo
			autoInc                sql.NullInt64
			createTime, updateTime sql.NullTime
		)
		if err := rows.Scan(&t.Name, &t.Engine, &t.Rows, &t.DataLength, &t.IndexLength, &autoInc,
			&t.Collation, &t.Comment, &createTime, &updateTime); err != nil {
			return nil, fmt.Errorf("ошибка сканирования таблицы: %w", err)
		}
		if autoInc.Valid {
			v := autoInc.Int64
			t.AutoIncrement = &v
		}
		t.CreateTime = timePtr(createTime)
		t.UpdateTime = timePtr(updateTime)
		result = append(result, t)
	}
	return result, rows.Err()
}

// tableFilter - условие по таблице, если она задана.
func tableFilter(column, table string) (string, []any) {
	if table == "" {
		return "", nil
	}
	return " AND " + column + " = ?", []any{table}
}

func (r *schemaRepo) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	cond, args := tableFilter("TABLE_NAME", table)
	query := `
		SELECT TABLE_NAME, COLUMN_NAME, ORDINAL_POSITION, COLUMN_TYPE, IS_NULLABLE,
			COLUMN_DEFAULT, COLUMN_KEY, EXTRA, COLUMN_COMMENT
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()` + cond + `
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения столбцов: %w", err)
	}
	defer rows.Close()

	var result []ColumnInfo
	for rows.Next() {
		var (
			c        ColumnInfo
			nullable string
			def      sql.NullString
		)
		if err := rows.Scan(&c.Table, &c.Name, &c.Position, &c.Type, &nullable,
			&def, &c.Key, &c.Extra, &c.Comment); err != nil {
			return nil, fmt.Errorf("ошибка сканирования столбца: %w", err)
		}
		c.Nullable = nullable == "YES"
		c.Default = stringPtr(def)
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *schemaRepo) ForeignKeys(ctx context.Context, table string) ([]ForeignKeyInfo, error) {
	cond, args := tableFilter("k.TABLE_NAME", table)
	query := `
		SELECT k.CONSTRAINT_NAME, k.TABLE_NAME, k.COLUMN_NAME,
			k.REFERENCED_TABLE_NAME, k.REFERENCED_COLUMN_NAME, rc.UPDATE_RULE, rc.DELETE_RULE
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
			ON rc.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.TABLE_SCHEMA = DATABASE() AND k.REFERENCED_TABLE_NAME IS NOT NULL` + cond + `
		ORDER BY k.TABLE_NAME, k.CONSTRAINT_NAME`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения внешних ключей: %w", err)
	}
	defer rows.Close()

	var result []ForeignKeyInfo
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn,
			&fk.UpdateRule, &fk.DeleteRule); err != nil {
			return nil, fmt.Errorf("ошибка сканирования внешнего ключа: %w", err)
		}
		result = append(result, fk)
	}
	return result, rows.Err()
}

func (r *schemaRepo) Indexes(ctx context.Context, table string) ([]IndexInfo, error) {
	cond, args := tableFilter("TABLE_NAME", table)
	query := `
		SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME, SEQ_IN_INDEX, NON_UNIQUE, INDEX_TYPE
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE()` + cond + `
		ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения индексов: %w", err)
	}
	defer rows.Close()

	var result []IndexInfo
	for rows.Next() {
		var (
			idx       IndexInfo
			nonUnique int
		)
		if err := rows.Scan(&idx.Table, &idx.Name, &idx.Column, &idx.SeqInIndex, &nonUnique, &idx.Type); err != nil {
			return nil, fmt.Errorf("ошибка сканирования индекса: %w", err)
		}
		idx.Unique = nonUnique == 0
		result = append(result, idx)
	}
	return result, rows.Err()
}

func (r *schemaRepo) OrphanCount(ctx context.Context, fk ForeignKeyInfo) (int64, error) {
	// Имена берутся из information_schema, а не от клиента; экранируются
	// обратными кавычками.
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s c
		LEFT JOIN %s p ON c.%s = p.%s
		WHERE c.%s IS NOT NULL AND p.%s IS NULL`,
		quoteIdent(fk.Table), quoteIdent(fk.RefTable),
		quoteIdent(fk.Column), quoteIdent(fk.RefColumn),
		quoteIdent(fk.Column), quoteIdent(fk.RefColumn),
	)

	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка проверки внешнего ключа %s: %w", fk.Name, err)
	}
	return count, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
