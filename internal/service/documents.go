// documents.go - просмотр файлов документов: сначала хранилище на
// диске, затем backend. Листинг каталога постулянта.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/docstore"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Сообщения ответов по файлам документов.
const (
	MsgDocumentIDRequired   = "ID de documento requerido"
	MsgDocumentFileNotFound = "Archivo del documento no encontrado"
	MsgPostulantDirNotFound = "Directorio del postulante no encontrado"
	MsgInvalidFileName      = "Nombre de archivo inválido"
)

// Источник файла документа.
const (
	SourceFilesystem = "filesystem"
	SourceBackend    = "backend"
)

// DocumentStream - открытый файл документа. Body закрывает вызывающий.
type DocumentStream struct {
	Body        io.ReadCloser
	Name        string
	ContentType string
	// Size - размер в байтах, -1 если неизвестен.
	Size   int64
	Source string
}

// DocumentDirectory - файлы каталога постулянта.
type DocumentDirectory struct {
	DNI       string             `json:"dni"`
	Directory string             `json:"directory"`
	Files     []model.StoredFile `json:"files"`
	Total     int                `json:"total"`
}

// DocumentService - доступ к файлам документов.
type DocumentService struct {
	store        *docstore.Store
	postulations *PostulationService
	backend      Backend
	logger       *slog.Logger
}

// NewDocumentService создаёт сервис файлов документов.
func NewDocumentService(store *docstore.Store, postulations *PostulationService, backend Backend, logger *slog.Logger) *DocumentService {
	return &DocumentService{
		store:        store,
		postulations: postulations,
		backend:      backend,
		logger:       logger.With(slog.String("component", "document_service")),
	}
}

// View открывает файл документа id. dni, если задан, позволяет найти
// путь файла по метаданным backend и искать в каталоге постулянта.
func (s *DocumentService) View(ctx context.Context, id, dni string) (*DocumentStream, error) {
	if id == "" {
		return nil, invalid(MsgDocumentIDRequired, nil)
	}

	var filePath, name string
	if dni != "" {
		if doc := s.lookup(ctx, id, dni); doc != nil {
			filePath = docstore.DocumentPath(*doc, dni)
			name = firstNonEmpty(doc.OriginalName, doc.FileName)
		}
	}

	full, info, err := s.store.Locate(filePath, id, dni)
	switch {
	case err == nil:
		f, err := s.store.OpenPath(full)
		if err == nil {
			return &DocumentStream{
				Body:        f,
				Name:        firstNonEmpty(name, info.Name()),
				ContentType: docstore.ContentType(info.Name()),
				Size:        info.Size(),
				Source:      SourceFilesystem,
			}, nil
		}
		s.logger.Warn("Файл найден, но не открывается", slog.String("path", full), slog.String("error", err.Error()))
	case errors.Is(err, docstore.ErrInvalidPath):
		return nil, &Error{Kind: ErrForbidden, Message: MsgInvalidFileName, cause: err}
	}

	resp, err := s.backend.DownloadDocument(ctx, id)
	if err != nil {
		return nil, backendError("файл документа", err, MsgDocumentFileNotFound)
	}
	s.logger.Debug("Документ получен из backend", slog.String("document_id", id))

	fileName := firstNonEmpty(resp.FileName, name, id)
	contentType := resp.ContentType
	if contentType == "" {
		contentType = docstore.ContentType(fileName)
	}
	size := resp.ContentLength
	if size <= 0 {
		size = -1
	}
	return &DocumentStream{
		Body:        resp.Body,
		Name:        fileName,
		ContentType: contentType,
		Size:        size,
		Source:      SourceBackend,
	}, nil
}

// lookup находит метаданные документа среди документов постулянта.
// Ошибки backend не прерывают просмотр: файл ищется по префиксу id.
func (s *DocumentService) lookup(ctx context.Context, id, dni string) *model.Document {
	user, err := s.postulations.FindUser(ctx, dni)
	if err != nil {
		s.logger.Debug("Постулянт не найден для документа",
			slog.String("dni", dni),
			slog.String("error", err.Error()),
		)
		return nil
	}
	page, err := s.backend.ListDocuments(ctx, backendclient.DocumentQuery{UserID: user.ID, Size: documentLookupSize})
	if err != nil {
		s.logger.Warn("Не удалось получить документы постулянта",
			slog.String("dni", dni),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for i := range page.Content {
		if page.Content[i].ID == id {
			return &page.Content[i]
		}
	}
	return nil
}

// Directory возвращает файлы каталога постулянта.
func (s *DocumentService) Directory(dni string) (*DocumentDirectory, error) {
	dir, files, err := s.store.List(dni)
	if err != nil {
		return nil, storeError(err, MsgPostulantDirNotFound)
	}
	return &DocumentDirectory{DNI: dni, Directory: dir, Files: files, Total: len(files)}, nil
}

// OpenFile открывает файл из каталога постулянта. Имя с разделителем
// пути даёт ErrForbidden.
func (s *DocumentService) OpenFile(dni, name string) (*DocumentStream, error) {
	f, info, err := s.store.Open(dni, name)
	if err != nil {
		return nil, storeError(err, MsgDocumentFileNotFound)
	}
	return &DocumentStream{
		Body:        f,
		Name:        info.Name(),
		ContentType: docstore.ContentType(info.Name()),
		Size:        info.Size(),
		Source:      SourceFilesystem,
	}, nil
}

func storeError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, docstore.ErrInvalidPath):
		return &Error{Kind: ErrForbidden, Message: MsgInvalidFileName, cause: err}
	case errors.Is(err, docstore.ErrNotFound):
		return notFound(notFoundMsg)
	default:
		return err
	}
}
