// Пакет docstore - чтение документов постулянтов с диска.
// Документы лежат в <base>/<dni>/<файл>, баз несколько (основная,
// восстановленная, резервная) и они просматриваются по порядку.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Ошибки хранилища документов.
var (
	// ErrNotFound - файл или каталог не найден ни в одной базе.
	ErrNotFound = errors.New("документ не найден в хранилище")
	// ErrInvalidPath - путь выходит за пределы базового каталога.
	ErrInvalidPath = errors.New("недопустимый путь к документу")
)

// contentTypes - типы содержимого по расширению.
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".rtf":  "application/rtf",
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]`)

// Store - поиск и чтение файлов документов.
type Store struct {
	basePaths []string
	logger    *slog.Logger
}

// New создаёт Store. Пустые пути отбрасываются.
func New(basePaths []string, logger *slog.Logger) *Store {
	paths := make([]string, 0, len(basePaths))
	for _, p := range basePaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, filepath.Clean(p))
		}
	}
	return &Store{
		basePaths: paths,
		logger:    logger.With(slog.String("component", "docstore")),
	}
}

// BasePaths возвращает базовые каталоги в порядке просмотра.
func (s *Store) BasePaths() []string {
	return s.basePaths
}

// ContentType определяет тип содержимого по расширению файла.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// SanitizeFileName заменяет всё, кроме латиницы, цифр, точки и дефиса,
// на подчёркивание. Используется в Content-Disposition.
func SanitizeFileName(name string) string {
	return unsafeChars.ReplaceAllString(filepath.Base(name), "_")
}

// within соединяет base и rel и проверяет, что результат остаётся внутри base.
func within(base, rel string) (string, error) {
	full := filepath.Join(base, filepath.FromSlash(rel))
	r, err := filepath.Rel(base, full)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return full, nil
}

// Locate ищет файл документа. Сначала filePath (вида "dni/файл")
// проверяется точным совпадением в каждой базе; затем, если известен
// id документа, в каталоге <base>/<dni> берётся первый файл, имя
// которого начинается с id. Возвращает абсолютный путь и информацию
// о файле либо ErrNotFound.
func (s *Store) Locate(filePath, docID, dni string) (string, fs.FileInfo, error) {
	filePath = relativeDocPath(filePath)
	if filePath != "" {
		for _, base := range s.basePaths {
			full, err := within(base, filePath)
			if err != nil {
				return "", nil, err
			}
			if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
				return full, info, nil
			}
		}
	}

	if docID == "" || dni == "" {
		return "", nil, ErrNotFound
	}

	for _, base := range s.basePaths {
		dir, err := within(base, dni)
		if err != nil {
			return "", nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), docID) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			full := filepath.Join(dir, e.Name())
			s.logger.Debug("Документ найден по префиксу id",
				slog.String("document_id", docID),
				slog.String("path", full),
			)
			return full, info, nil
		}
	}
	return "", nil, ErrNotFound
}

// relativeDocPath - абсолютный путь backend сводится к "dni/файл".
func relativeDocPath(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		return p
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}

// DocumentPath - относительный путь документа: filePath из backend,
// иначе "dni/fileName".
func DocumentPath(doc model.Document, dni string) string {
	if doc.FilePath != "" {
		return doc.FilePath
	}
	if doc.FileName != "" && dni != "" {
		return dni + "/" + doc.FileName
	}
	return ""
}

// FileSize возвращает размер документа на диске или 0, если файл
// не найден.
func (s *Store) FileSize(doc model.Document, dni string) int64 {
	_, info, err := s.Locate(DocumentPath(doc, dni), doc.ID, dni)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("Ошибка поиска файла документа",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
		}
		return 0
	}
	return info.Size()
}

// List возвращает файлы каталога постулянта из первой базы, где он есть.
func (s *Store) List(dni string) (string, []model.StoredFile, error) {
	for _, base := range s.basePaths {
		dir, err := within(base, dni)
		if err != nil {
			return "", nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		files := make([]model.StoredFile, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			full := filepath.Join(dir, e.Name())
			info, err := e.Info()
			if err != nil {
				files = append(files, model.StoredFile{
					FileName:    e.Name(),
					FilePath:    full,
					ContentType: "application/octet-stream",
				})
				continue
			}
			files = append(files, model.StoredFile{
				FileName:     e.Name(),
				FilePath:     full,
				FileSize:     info.Size(),
				ContentType:  ContentType(e.Name()),
				LastModified: info.ModTime(),
				IsAccessible: true,
			})
		}
		return dir, files, nil
	}
	return "", nil, ErrNotFound
}

// Open открывает файл fileName из каталога постулянта.
// Вызывающий код обязан закрыть файл.
func (s *Store) Open(dni, fileName string) (*os.File, fs.FileInfo, error) {
	if fileName == "" || strings.ContainsAny(fileName, `/\`) {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidPath, fileName)
	}
	full, info, err := s.Locate(dni+"/"+fileName, "", dni)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка открытия файла %s: %w", fileName, err)
	}
	return f, info, nil
}

// OpenPath открывает файл по абсолютному пути, полученному из Locate.
func (s *Store) OpenPath(full string) (*os.File, error) {
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", full, err)
	}
	return f, nil
}
