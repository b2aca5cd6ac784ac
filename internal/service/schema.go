// schema.go - инспектор схемы БД: полная схема, обзор, метаданные,
// занимаемое место, проверка ссылочной целостности. Результаты
// кэшируются; refresh обходит кэш и перезаписывает его.
package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/backup"
	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

// MsgTableNotFound - таблица не найдена.
const MsgTableNotFound = "Table not found"

// largestTables - сколько крупнейших таблиц показывать в обзоре.
const largestTables = 10

// TableSchema - таблица со столбцами, ключами и индексами.
type TableSchema struct {
	repository.TableInfo
	Columns     []repository.ColumnInfo     `json:"columns"`
	ForeignKeys []repository.ForeignKeyInfo `json:"foreignKeys"`
	Indexes     []repository.IndexInfo      `json:"indexes"`
}

// FullSchema - полная схема базы.
type FullSchema struct {
	Database    *repository.DatabaseMeta `json:"database"`
	Tables      []TableSchema            `json:"tables"`
	GeneratedAt time.Time                `json:"generatedAt"`
}

// TableSize - размер таблицы.
type TableSize struct {
	Name       string  `json:"name"`
	Rows       int64   `json:"rows"`
	DataBytes  int64   `json:"dataBytes"`
	IndexBytes int64   `json:"indexBytes"`
	TotalBytes int64   `json:"totalBytes"`
	Total      string  `json:"total"`
	Percent    float64 `json:"percent"`
}

// SchemaOverview - сводка по базе.
type SchemaOverview struct {
	Database      *repository.DatabaseMeta `json:"database"`
	TableCount    int                      `json:"tableCount"`
	TotalRows     int64                    `json:"totalRows"`
	DataBytes     int64                    `json:"dataBytes"`
	IndexBytes    int64                    `json:"indexBytes"`
	TotalSize     string                   `json:"totalSize"`
	ForeignKeys   int                      `json:"foreignKeys"`
	LargestTables []TableSize              `json:"largestTables"`
}

// SchemaMetadata - сведения о базе и список таблиц без столбцов.
type SchemaMetadata struct {
	Database *repository.DatabaseMeta `json:"database"`
	Tables   []repository.TableInfo   `json:"tables"`
}

// StorageReport - место, занимаемое таблицами, крупные первыми.
type StorageReport struct {
	Tables     []TableSize `json:"tables"`
	TotalBytes int64       `json:"totalBytes"`
	Total      string      `json:"total"`
}

// IntegrityIssue - внешний ключ со ссылками на отсутствующие записи.
type IntegrityIssue struct {
	Constraint string `json:"constraint"`
	Table      string `json:"table"`
	Column     string `json:"column"`
	RefTable   string `json:"referencedTable"`
	RefColumn  string `json:"referencedColumn"`
	OrphanRows int64  `json:"orphanRows"`
}

// SchemaValidation - результат проверки целостности.
type SchemaValidation struct {
	Valid             bool             `json:"valid"`
	CheckedForeignKey int              `json:"checkedForeignKeys"`
	Issues            []IntegrityIssue `json:"issues"`
	// TablesWithoutPK - таблицы без первичного ключа.
	TablesWithoutPK []string  `json:"tablesWithoutPrimaryKey"`
	CheckedAt       time.Time `json:"checkedAt"`
}

// CacheInfo - состояние кэша схемы.
type CacheInfo struct {
	Stats  cache.Stats  `json:"stats"`
	Keys   []string     `json:"keys"`
	Health cache.Health `json:"health"`
}

// SchemaService - инспектор схемы.
type SchemaService struct {
	repo   repository.SchemaRepository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewSchemaService создаёт инспектор схемы.
func NewSchemaService(repo repository.SchemaRepository, c *cache.Cache, logger *slog.Logger) *SchemaService {
	return &SchemaService{
		repo:   repo,
		cache:  c,
		logger: logger.With(slog.String("component", "schema_service")),
	}
}

// cached возвращает значение из кэша или вычисляет и сохраняет его.
func cached[T any](ctx context.Context, c *cache.Cache, key string, refresh bool, load func() (T, error)) (T, error) {
	var v T
	if !refresh && c.Get(ctx, key, &v) {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v)
	return v, nil
}

// Full возвращает полную схему.
func (s *SchemaService) Full(ctx context.Context, refresh bool) (*FullSchema, error) {
	return cached(ctx, s.cache, "schema:full", refresh, func() (*FullSchema, error) {
		meta, err := s.repo.Meta(ctx)
		if err != nil {
			return nil, err
		}
		tables, err := s.repo.Tables(ctx)
		if err != nil {
			return nil, err
		}
		cols, err := s.repo.Columns(ctx, "")
		if err != nil {
			return nil, err
		}
		fks, err := s.repo.ForeignKeys(ctx, "")
		if err != nil {
			return nil, err
		}
		idx, err := s.repo.Indexes(ctx, "")
		if err != nil {
			return nil, err
		}

		out := &FullSchema{Database: meta, Tables: make([]TableSchema, 0, len(tables)), GeneratedAt: time.Now().UTC()}
		for _, t := range tables {
			out.Tables = append(out.Tables, TableSchema{
				TableInfo:   t,
				Columns:     filterBy(cols, func(c repository.ColumnInfo) bool { return c.Table == t.Name }),
				ForeignKeys: filterBy(fks, func(f repository.ForeignKeyInfo) bool { return f.Table == t.Name }),
				Indexes:     filterBy(idx, func(i repository.IndexInfo) bool { return i.Table == t.Name }),
			})
		}
		s.logger.Debug("Схема загружена", slog.Int("tables", len(out.Tables)))
		return out, nil
	})
}

// Table возвращает схему одной таблицы.
func (s *SchemaService) Table(ctx context.Context, name string, refresh bool) (*TableSchema, error) {
	return cached(ctx, s.cache, "schema:table:"+name, refresh, func() (*TableSchema, error) {
		tables, err := s.repo.Tables(ctx)
		if err != nil {
			return nil, err
		}
		var info *repository.TableInfo
		for i := range tables {
			if tables[i].Name == name {
				info = &tables[i]
				break
			}
		}
		if info == nil {
			return nil, notFound(MsgTableNotFound)
		}

		t := &TableSchema{TableInfo: *info}
		if t.Columns, err = s.repo.Columns(ctx, name); err != nil {
			return nil, err
		}
		if t.ForeignKeys, err = s.repo.ForeignKeys(ctx, name); err != nil {
			return nil, err
		}
		if t.Indexes, err = s.repo.Indexes(ctx, name); err != nil {
			return nil, err
		}
		return t, nil
	})
}

// Overview возвращает сводку по базе.
func (s *SchemaService) Overview(ctx context.Context, refresh bool) (*SchemaOverview, error) {
	return cached(ctx, s.cache, "schema:overview", refresh, func() (*SchemaOverview, error) {
		meta, err := s.repo.Meta(ctx)
		if err != nil {
			return nil, err
		}
		tables, err := s.repo.Tables(ctx)
		if err != nil {
			return nil, err
		}
		fks, err := s.repo.ForeignKeys(ctx, "")
		if err != nil {
			return nil, err
		}

		sizes, total := tableSizes(tables)
		o := &SchemaOverview{
			Database:    meta,
			TableCount:  len(tables),
			TotalSize:   backup.FormatSize(total),
			ForeignKeys: len(fks),
		}
		for _, t := range tables {
			o.TotalRows += t.Rows
			o.DataBytes += t.DataLength
			o.IndexBytes += t.IndexLength
		}
		o.LargestTables = sizes[:min(largestTables, len(sizes))]
		return o, nil
	})
}

// Metadata возвращает сведения о базе и список таблиц.
func (s *SchemaService) Metadata(ctx context.Context, refresh bool) (*SchemaMetadata, error) {
	return cached(ctx, s.cache, "schema:metadata", refresh, func() (*SchemaMetadata, error) {
		meta, err := s.repo.Meta(ctx)
		if err != nil {
			return nil, err
		}
		tables, err := s.repo.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return &SchemaMetadata{Database: meta, Tables: tables}, nil
	})
}

// Storage возвращает место, занимаемое таблицами.
func (s *SchemaService) Storage(ctx context.Context, refresh bool) (*StorageReport, error) {
	return cached(ctx, s.cache, "schema:storage", refresh, func() (*StorageReport, error) {
		tables, err := s.repo.Tables(ctx)
		if err != nil {
			return nil, err
		}
		sizes, total := tableSizes(tables)
		return &StorageReport{Tables: sizes, TotalBytes: total, Total: backup.FormatSize(total)}, nil
	})
}

// Validate ищет строки, ссылающиеся на отсутствующие записи, и
// таблицы без первичного ключа.
func (s *SchemaService) Validate(ctx context.Context, refresh bool) (*SchemaValidation, error) {
	return cached(ctx, s.cache, "schema:validate", refresh, func() (*SchemaValidation, error) {
		fks, err := s.repo.ForeignKeys(ctx, "")
		if err != nil {
			return nil, err
		}
		v := &SchemaValidation{
			CheckedForeignKey: len(fks),
			Issues:            []IntegrityIssue{},
			TablesWithoutPK:   []string{},
			CheckedAt:         time.Now().UTC(),
		}
		for _, fk := range fks {
			n, err := s.repo.OrphanCount(ctx, fk)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				v.Issues = append(v.Issues, IntegrityIssue{
					Constraint: fk.Name,
					Table:      fk.Table,
					Column:     fk.Column,
					RefTable:   fk.RefTable,
					RefColumn:  fk.RefColumn,
					OrphanRows: n,
				})
			}
		}

		tables, err := s.repo.Tables(ctx)
		if err != nil {
			return nil, err
		}
		cols, err := s.repo.Columns(ctx, "")
		if err != nil {
			return nil, err
		}
		withPK := map[string]bool{}
		for _, c := range cols {
			if c.Key == "PRI" {
				withPK[c.Table] = true
			}
		}
		for _, t := range tables {
			if !withPK[t.Name] {
				v.TablesWithoutPK = append(v.TablesWithoutPK, t.Name)
			}
		}

		v.Valid = len(v.Issues) == 0
		if !v.Valid {
			s.logger.Warn("Найдены нарушения ссылочной целостности", slog.Int("issues", len(v.Issues)))
		}
		return v, nil
	})
}

// CacheInfo возвращает состояние кэша схемы.
func (s *SchemaService) CacheInfo(ctx context.Context) CacheInfo {
	keys := s.cache.Keys()
	sort.Strings(keys)
	return CacheInfo{Stats: s.cache.Stats(), Keys: keys, Health: s.cache.Health(ctx)}
}

// ClearCache очищает кэш схемы и возвращает число удалённых записей.
func (s *SchemaService) ClearCache(ctx context.Context) int {
	return s.cache.Clear(ctx)
}

// tableSizes считает размеры таблиц, крупные первыми.
func tableSizes(tables []repository.TableInfo) ([]TableSize, int64) {
	var total int64
	for _, t := range tables {
		total += t.DataLength + t.IndexLength
	}
	sizes := make([]TableSize, 0, len(tables))
	for _, t := range tables {
		bytes := t.DataLength + t.IndexLength
		var pct float64
		if total > 0 {
			pct = math.Round(float64(bytes)/float64(total)*10000) / 100
		}
		sizes = append(sizes, TableSize{
			Name:       t.Name,
			Rows:       t.Rows,
			DataBytes:  t.DataLength,
			IndexBytes: t.IndexLength,
			TotalBytes: bytes,
			Total:      backup.FormatSize(bytes),
			Percent:    pct,
		})
	}
	sort.SliceStable(sizes, func(i, j int) bool { return sizes[i].TotalBytes > sizes[j].TotalBytes })
	return sizes, total
}

func filterBy[T any](items []T, keep func(T) bool) []T {
	out := []T{}
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
