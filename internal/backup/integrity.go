package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// ErrIntegrity - файл копии не прошёл проверку.
var ErrIntegrity = errors.New("проверка целостности не пройдена")

const (
	dumpHeader = "-- MySQL dump"
	dumpFooter = "-- Dump completed"
	// Заголовок и подпись ищутся в этих окнах начала и конца файла.
	headWindow = 4096
	tailWindow = 4096
)

// VerifySQLDump проверяет, что дамп начинается заголовком mysqldump
// и заканчивается отметкой о завершении.
func VerifySQLDump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	head := make([]byte, min(int64(headWindow), info.Size()))
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if !bytes.Contains(head, []byte(dumpHeader)) {
		return fmt.Errorf("%w: нет заголовка %q", ErrIntegrity, dumpHeader)
	}

	tailSize := min(int64(tailWindow), info.Size())
	tail := make([]byte, tailSize)
	if _, err := f.ReadAt(tail, info.Size()-tailSize); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if !bytes.Contains(tail, []byte(dumpFooter)) {
		return fmt.Errorf("%w: дамп не завершён", ErrIntegrity)
	}
	return nil
}

// VerifyArchive читает tar.gz до конца.
func VerifyArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		_, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
	}
}

// Verify проверяет файл по расширению.
func Verify(path string) error {
	switch {
	case strings.HasSuffix(path, ".sql"):
		return VerifySQLDump(path)
	case strings.HasSuffix(path, ".tar.gz"):
		return VerifyArchive(path)
	default:
		return fmt.Errorf("%w: неизвестный формат %s", ErrIntegrity, filepath.Base(path))
	}
}

// ScanOrphans ищет в dir файлы .sql и .tar.gz, не упомянутые в known
// (множество абсолютных путей из метаданных). Такие файлы возвращаются
// как копии с целостностью pending.
func ScanOrphans(dir string, known map[string]bool) ([]*model.Backup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения каталога бэкапов: %w", err)
	}

	var orphans []*model.Backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".tar.gz")) {
			continue
		}
		full := filepath.Join(dir, name)
		if known[full] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		orphans = append(orphans, &model.Backup{
			ID:                strings.TrimSuffix(strings.TrimSuffix(name, ".sql"), ".tar.gz"),
			Name:              name,
			CreatedAt:         info.ModTime().UTC(),
			SizeBytes:         info.Size(),
			Size:              FormatSize(info.Size()),
			Integrity:         model.IntegrityPending,
			Type:              model.BackupTypeFull,
			IncludesDocuments: strings.HasSuffix(name, ".tar.gz"),
			DocumentTypes:     []string{},
			DBPath:            full,
			Orphan:            true,
		})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].CreatedAt.After(orphans[j].CreatedAt) })
	return orphans, nil
}

// FormatSize форматирует размер в 1024-основанных единицах, не более
// двух знаков после запятой: 0 Bytes, 1.5 KB, 12 MB.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	return s + " " + units[i]
}

// Timestamp - метка времени для имён файлов копий.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05Z")
}
