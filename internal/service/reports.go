// reports.go - генерация отчётов: запись GENERATING в generated_reports,
// выборка данных, отрисовка файла в каталог отчётов, перевод записи в
// COMPLETED или FAILED. Список отчётов и скачивание со счётчиком.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/report"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

// Сообщения ответов по отчётам.
const (
	MsgReportNotFound      = "Report not found"
	MsgReportNoData        = "No data available for the selected report"
	MsgReportInvalidType   = "Invalid report type"
	MsgReportInvalidFormat = "Invalid report format"
	MsgReportNotReady      = "Report is not ready for download"
	MsgReportFileMissing   = "Report file not found"
)

// reportDocumentsSize - сколько документов запрашивать у backend для
// отчёта document-status.
const reportDocumentsSize = 10000

// reportFileNames - основа имени файла по типу отчёта.
var reportFileNames = map[string]string{
	model.ReportContestsSummary:       "resumen_concursos",
	model.ReportValidationProgress:    "progreso_validacion",
	model.ReportDocumentStatus:        "estado_documentos",
	model.ReportInscriptionsByContest: "inscripciones_por_concurso",
}

// ReportFilters - необязательные фильтры данных отчёта.
type ReportFilters struct {
	Status    string `json:"status,omitempty"`
	ContestID int64  `json:"contestId,omitempty"`
}

// ReportRequest - запрос на генерацию.
type ReportRequest struct {
	Type        string        `json:"type"`
	Format      string        `json:"format"`
	Filters     ReportFilters `json:"filters"`
	GeneratedBy string        `json:"-"`
}

// ReportPage - страница отчётов.
type ReportPage struct {
	Items []*model.GeneratedReport
	Page  int
	Limit int
	Total int
	Pages int
}

// ReportFile - открытый файл отчёта для скачивания.
type ReportFile struct {
	File        *os.File
	Name        string
	ContentType string
	Size        int64
}

// ReportService - сервис отчётов.
type ReportService struct {
	repo    repository.ReportRepository
	data    repository.ReportDataRepository
	backend Backend
	dir     string
	logger  *slog.Logger
	now     func() time.Time
}

// NewReportService создаёт сервис отчётов. dir - каталог файлов отчётов.
func NewReportService(repo repository.ReportRepository, data repository.ReportDataRepository, backend Backend, dir string, logger *slog.Logger) *ReportService {
	return &ReportService{
		repo:    repo,
		data:    data,
		backend: backend,
		dir:     dir,
		logger:  logger.With(slog.String("component", "report_service")),
		now:     time.Now,
	}
}

// Generate создаёт отчёт и возвращает запись о нём.
func (s *ReportService) Generate(ctx context.Context, req ReportRequest) (*model.GeneratedReport, error) {
	req.Format = strings.ToUpper(strings.TrimSpace(req.Format))
	if !slices.Contains(model.ReportTypes, req.Type) {
		return nil, invalid(MsgReportInvalidType, map[string][]string{"type": {MsgReportInvalidType}})
	}
	renderer, err := report.ForFormat(req.Format)
	if err != nil {
		return nil, invalid(MsgReportInvalidFormat, map[string][]string{"format": {MsgReportInvalidFormat}})
	}
	if req.GeneratedBy == "" {
		req.GeneratedBy = "system"
	}

	params, err := json.Marshal(req.Filters)
	if err != nil {
		return nil, fmt.Errorf("параметры отчёта: %w", err)
	}
	now := s.now()
	rep := &model.GeneratedReport{
		ID:          uuid.NewString(),
		ReportType:  req.Type,
		Format:      req.Format,
		FileName:    fmt.Sprintf("%s_%s.%s", reportFileNames[req.Type], now.Format("2006-01-02"), renderer.Extension()),
		GeneratedBy: req.GeneratedBy,
		Parameters:  params,
		Status:      model.ReportGenerating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, fmt.Errorf("создание записи отчёта: %w", err)
	}

	data, err := s.collect(ctx, req)
	if err != nil {
		s.markFailed(ctx, rep.ID, err.Error())
		return nil, err
	}
	if len(data.Rows) == 0 {
		s.markFailed(ctx, rep.ID, MsgReportNoData)
		return nil, notFound(MsgReportNoData)
	}

	path, size, err := s.write(rep.ID, renderer, data)
	if err != nil {
		s.markFailed(ctx, rep.ID, err.Error())
		return nil, &Error{Kind: ErrInternal, Message: "Error generating report", Details: err.Error(), cause: err}
	}
	if err := s.repo.MarkCompleted(ctx, rep.ID, path, size, len(data.Rows)); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("завершение отчёта: %w", err)
	}

	completed := s.now()
	rep.Status = model.ReportCompleted
	rep.FilePath = path
	rep.FileSize = size
	rep.RecordCount = len(data.Rows)
	rep.CompletedAt = &completed

	s.logger.Info("Отчёт сгенерирован",
		slog.String("report_id", rep.ID),
		slog.String("type", rep.ReportType),
		slog.String("format", rep.Format),
		slog.Int("records", rep.RecordCount),
	)
	return rep, nil
}

func (s *ReportService) markFailed(ctx context.Context, id, msg string) {
	if err := s.repo.MarkFailed(ctx, id, msg); err != nil {
		s.logger.Error("Не удалось отметить отчёт как FAILED",
			slog.String("report_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// write отрисовывает отчёт в <dir>/<id>.<ext>.
func (s *ReportService) write(id string, r report.Renderer, data model.ReportData) (string, int64, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("каталог отчётов: %w", err)
	}
	path := filepath.Join(s.dir, id+"."+r.Extension())
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("создание файла отчёта: %w", err)
	}
	if err := r.Render(f, data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("отрисовка отчёта: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("запись файла отчёта: %w", err)
	}
	return path, fileSize(path), nil
}

// collect строит табличные данные отчёта.
func (s *ReportService) collect(ctx context.Context, req ReportRequest) (model.ReportData, error) {
	switch req.Type {
	case model.ReportContestsSummary:
		return s.contestsSummary(ctx, req.Filters)
	case model.ReportInscriptionsByContest:
		return s.inscriptionsByContest(ctx, req.Filters)
	case model.ReportValidationProgress:
		return s.validationProgress(ctx, req.Filters)
	default:
		return s.documentStatus(ctx, req.Filters)
	}
}

func (s *ReportService) contestsSummary(ctx context.Context, f ReportFilters) (model.ReportData, error) {
	rows, err := s.data.ContestsSummary(ctx, f.Status)
	if err != nil {
		return model.ReportData{}, err
	}
	data := model.ReportData{
		Title:   "Resumen de concursos",
		Columns: []string{"ID", "Título", "Categoría", "Cargo", "Estado", "Inicio inscripción", "Fin inscripción", "Inscripciones"},
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(r.ID, 10), r.Title, r.Category, r.Position, r.Status,
			formatDate(r.InscriptionStartDate), formatDate(r.InscriptionEndDate),
			strconv.Itoa(r.Inscriptions),
		})
	}
	return data, nil
}

func (s *ReportService) inscriptionsByContest(ctx context.Context, f ReportFilters) (model.ReportData, error) {
	rows, err := s.data.InscriptionsByContest(ctx, f.ContestID)
	if err != nil {
		return model.ReportData{}, err
	}
	data := model.ReportData{
		Title:   "Inscripciones por concurso",
		Columns: []string{"ID concurso", "Concurso", "Estado", "Cantidad"},
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(r.ContestID, 10), r.ContestTitle, r.State, strconv.Itoa(r.Count),
		})
	}
	return data, nil
}

// validationProgress сводит состояния инскрипций по конкурсам: всего,
// ожидают, одобрены, отклонены и доля завершённых.
func (s *ReportService) validationProgress(ctx context.Context, f ReportFilters) (model.ReportData, error) {
	rows, err := s.data.InscriptionsByContest(ctx, f.ContestID)
	if err != nil {
		return model.ReportData{}, err
	}

	type progress struct {
		title                              string
		total, pending, approved, rejected int
	}
	byContest := map[int64]*progress{}
	var order []int64
	for _, r := range rows {
		p, ok := byContest[r.ContestID]
		if !ok {
			p = &progress{title: r.ContestTitle}
			byContest[r.ContestID] = p
			order = append(order, r.ContestID)
		}
		p.total += r.Count
		switch r.State {
		case model.InscriptionApproved:
			p.approved += r.Count
		case model.InscriptionRejected:
			p.rejected += r.Count
		default:
			p.pending += r.Count
		}
	}

	data := model.ReportData{
		Title:   "Progreso de validación",
		Columns: []string{"ID concurso", "Concurso", "Total", "Pendientes", "Aprobadas", "Rechazadas", "Progreso %"},
	}
	for _, id := range order {
		p := byContest[id]
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(id, 10), p.title,
			strconv.Itoa(p.total), strconv.Itoa(p.pending),
			strconv.Itoa(p.approved), strconv.Itoa(p.rejected),
			strconv.Itoa(model.ReviewProgress(model.DocumentStats{Total: p.total, Approved: p.approved, Rejected: p.rejected})),
		})
	}
	return data, nil
}

// documentStatus считает документы backend по типу и статусу.
func (s *ReportService) documentStatus(ctx context.Context, f ReportFilters) (model.ReportData, error) {
	page, err := s.backend.ListDocuments(ctx, backendclient.DocumentQuery{Status: f.Status, Size: reportDocumentsSize})
	if err != nil {
		return model.ReportData{}, backendError("документы для отчёта", err, "")
	}

	type key struct{ docType, status string }
	counts := map[key]int{}
	for _, d := range page.Content {
		docType := firstNonEmpty(d.DocumentTypeName, d.DocumentType, "Sin tipo")
		counts[key{docType, d.ValidationStatus}]++
	}
	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].docType != keys[j].docType {
			return keys[i].docType < keys[j].docType
		}
		return keys[i].status < keys[j].status
	})

	data := model.ReportData{
		Title:   "Estado de documentos",
		Columns: []string{"Tipo de documento", "Estado", "Cantidad"},
	}
	for _, k := range keys {
		data.Rows = append(data.Rows, []string{k.docType, k.status, strconv.Itoa(counts[k])})
	}
	return data, nil
}

// List возвращает страницу отчётов.
func (s *ReportService) List(ctx context.Context, filter model.ReportFilter, page, limit int) (*ReportPage, error) {
	items, err := s.repo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ReportPage{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// Open открывает файл готового отчёта и увеличивает счётчик скачиваний.
// Файл закрывает вызывающий.
func (s *ReportService) Open(ctx context.Context, id string) (*ReportFile, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound(MsgReportNotFound)
	}
	if err != nil {
		return nil, err
	}
	if rep.Status != model.ReportCompleted || rep.FilePath == "" {
		return nil, conflict(MsgReportNotReady, rep.Status)
	}

	f, err := os.Open(rep.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(MsgReportFileMissing)
		}
		return nil, fmt.Errorf("открытие файла отчёта: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("файл отчёта: %w", err)
	}

	if err := s.repo.IncrementDownloads(ctx, id); err != nil {
		s.logger.Warn("Не удалось увеличить счётчик скачиваний",
			slog.String("report_id", id),
			slog.String("error", err.Error()),
		)
	}

	contentType := "application/octet-stream"
	if r, err := report.ForFormat(rep.Format); err == nil {
		contentType = r.ContentType()
	}
	return &ReportFile{File: f, Name: rep.FileName, ContentType: contentType, Size: info.Size()}, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
