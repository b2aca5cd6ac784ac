package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DocumentTypeDirs - типы документов и их подкаталоги в хранилище.
var DocumentTypeDirs = map[string]string{
	"documents":     "documents",
	"cvDocuments":   "cv-documents",
	"profileImages": "profile-images",
}

// ResolveDocumentDirs переводит типы документов в подкаталоги.
// Принимается и ключ типа, и имя подкаталога. Неизвестные типы
// возвращаются отдельно.
func ResolveDocumentDirs(types []string) (dirs, unknown []string) {
	seen := make(map[string]bool)
	for _, t := range types {
		dir, ok := DocumentTypeDirs[t]
		if !ok {
			for _, d := range DocumentTypeDirs {
				if d == t {
					dir, ok = d, true
					break
				}
			}
		}
		if !ok {
			unknown = append(unknown, t)
			continue
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, unknown
}

// ArchiveStats - результат архивации.
type ArchiveStats struct {
	Files int
	Bytes int64
}

// ArchiveDocuments упаковывает root в tar.gz по пути dst. Если dirs
// не пуст, в архив попадают только эти подкаталоги root; отсутствующие
// пропускаются. Пути в архиве относительны root.
func ArchiveDocuments(ctx context.Context, root string, dirs []string, dst string) (ArchiveStats, error) {
	var stats ArchiveStats

	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("каталог документов недоступен: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%s не является каталогом", root)
	}

	out, err := os.Create(dst)
	if err != nil {
		return stats, fmt.Errorf("ошибка создания архива: %w", err)
	}

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	roots := []string{root}
	if len(dirs) > 0 {
		roots = roots[:0]
		for _, d := range dirs {
			p := filepath.Join(root, d)
			if fi, err := os.Stat(p); err == nil && fi.IsDir() {
				roots = append(roots, p)
			}
		}
	}

	for _, r := range roots {
		err = filepath.WalkDir(r, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return addEntry(tw, root, path, d, &stats)
		})
		if err != nil {
			break
		}
	}

	if cerr := tw.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if cerr := gz.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return ArchiveStats{}, fmt.Errorf("ошибка архивации документов: %w", err)
	}
	return stats, nil
}

func addEntry(tw *tar.Writer, root, path string, d fs.DirEntry, stats *ArchiveStats) error {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return err
	}
	info, err := d.Info()
	if err != nil {
		return err
	}
	// Символические ссылки и спецфайлы не архивируются.
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(tw, f)
	if err != nil {
		return err
	}
	stats.Files++
	stats.Bytes += n
	return nil
}
