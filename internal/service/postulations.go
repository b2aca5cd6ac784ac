// postulations.go - сервис постуляций: сборка документов постулянта
// из backend, файлового хранилища и локальной таблицы конкурсов;
// смена состояния инскрипции (одобрение, отклонение, возврат в PENDING).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/docstore"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

// Сообщения ответов по постуляциям.
const (
	MsgPostulantNotFound        = "Postulante no encontrado"
	MsgInscriptionRequired      = "ID de inscripción requerido"
	MsgInscriptionNotFound      = "Inscripción no encontrada"
	MsgRequiredDocsPending      = "No se puede aprobar la postulación: hay documentos obligatorios sin aprobar"
	MsgInscriptionNotRevertable = "La inscripción no se puede revertir desde su estado actual"

	NoteApproved        = "Postulación aprobada"
	NoteRejected        = "Postulación rechazada"
	NoteValidationStart = "Inicio de proceso de validación administrativa"

	// Значения, когда конкурс не найден в локальной таблице.
	FallbackContestTitle    = "Concurso Multifuero MPD"
	FallbackContestPosition = "Magistrado/a"
	FallbackCentroDeVida    = "Sin especificar"
)

const (
	// userLookupSize - размер страницы пользователей при поиске по DNI.
	userLookupSize = 1000
	// documentLookupSize - максимум документов постулянта за запрос.
	documentLookupSize = 1000
	// sizeProbeLimit - число одновременных проверок размера файлов.
	sizeProbeLimit = 8
)

// SizeProber определяет размер файла документа на диске.
// Реализуется *docstore.Store.
type SizeProber interface {
	FileSize(doc model.Document, dni string) int64
}

// ContestInfo - сведения о конкурсе для карточки постулянта.
type ContestInfo struct {
	ID                   int64      `json:"id,omitempty"`
	Title                string     `json:"title"`
	Position             string     `json:"position"`
	Category             string     `json:"category,omitempty"`
	Department           string     `json:"department,omitempty"`
	Status               string     `json:"status,omitempty"`
	InscriptionStartDate *time.Time `json:"inscriptionStartDate,omitempty"`
	InscriptionEndDate   *time.Time `json:"inscriptionEndDate,omitempty"`
}

// Postulant - постулянт: пользователь, его инскрипция и конкурс.
type Postulant struct {
	User         model.User                `json:"user"`
	Inscription  *model.BackendInscription `json:"inscription"`
	Contest      ContestInfo               `json:"contest"`
	CentroDeVida string                    `json:"centroDeVida"`
}

// PostulantDocuments - результат агрегации документов постулянта.
type PostulantDocuments struct {
	Postulant Postulant           `json:"postulant"`
	Documents []model.Document    `json:"documents"`
	Stats     model.DocumentStats `json:"stats"`
}

// DecisionInput - тело запросов approve/reject/start-validation.
type DecisionInput struct {
	InscriptionID string `json:"inscriptionId"`
	Note          string `json:"note"`
}

// RevertInput - тело запроса возврата инскрипции в PENDING.
type RevertInput struct {
	InscriptionID string `json:"inscriptionId"`
	Reason        string `json:"reason"`
	RevertedBy    string `json:"revertedBy"`
}

// RevertResult - инскрипция после возврата и её прежнее состояние.
type RevertResult struct {
	Inscription   *model.BackendInscription `json:"inscription"`
	PreviousState string                    `json:"previousState"`
	RevertedBy    string                    `json:"revertedBy"`
	Note          string                    `json:"note"`
}

// PostulationService - сервис постуляций.
type PostulationService struct {
	backend  Backend
	contests repository.ContestRepository
	files    SizeProber
	logger   *slog.Logger
}

// NewPostulationService создаёт сервис постуляций.
func NewPostulationService(
	backend Backend,
	contests repository.ContestRepository,
	files SizeProber,
	logger *slog.Logger,
) *PostulationService {
	return &PostulationService{
		backend:  backend,
		contests: contests,
		files:    files,
		logger:   logger.With(slog.String("component", "postulation_service")),
	}
}

// FindUser ищет пользователя по точному совпадению DNI или username.
func (s *PostulationService) FindUser(ctx context.Context, dni string) (*model.User, error) {
	page, err := s.backend.ListUsers(ctx, model.UserFilter{Size: userLookupSize})
	if err != nil {
		return nil, backendError("поиск пользователя", err, "")
	}
	for i := range page.Content {
		u := &page.Content[i]
		if u.DNI == dni || u.Username == dni {
			return u, nil
		}
	}
	return nil, notFound(MsgPostulantNotFound)
}

// Documents собирает документы постулянта со статистикой и
// сведениями о конкурсе.
func (s *PostulationService) Documents(ctx context.Context, dni string) (*PostulantDocuments, error) {
	user, err := s.FindUser(ctx, dni)
	if err != nil {
		return nil, err
	}

	var (
		inscription *model.BackendInscription
		docs        []model.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := s.backend.ListInscriptions(gctx, backendclient.InscriptionQuery{UserID: user.ID})
		if err != nil {
			// Без инскрипции карточка строится по запасным значениям.
			s.logger.Warn("Не удалось получить инскрипции постулянта",
				slog.String("dni", dni),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if len(page.Content) > 0 {
			ins := page.Content[0]
			inscription = &ins
		}
		return nil
	})
	g.Go(func() error {
		page, err := s.backend.ListDocuments(gctx, backendclient.DocumentQuery{UserID: user.ID, Size: documentLookupSize})
		if err != nil {
			return err
		}
		docs = page.Content
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, backendError("документы постулянта", err, "")
	}

	owned := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if ownsDocument(d, user, dni) {
			owned = append(owned, d)
		}
	}
	if dropped := len(docs) - len(owned); dropped > 0 {
		s.logger.Debug("Отброшены документы без признака владельца",
			slog.String("dni", dni),
			slog.Int("dropped", dropped),
		)
	}

	if err := s.enrichDocuments(ctx, owned, dni); err != nil {
		return nil, err
	}

	postulant := Postulant{
		User:         *user,
		Inscription:  inscription,
		Contest:      s.contestInfo(ctx, inscription),
		CentroDeVida: FallbackCentroDeVida,
	}
	if inscription != nil && inscription.CentroDeVida != "" {
		postulant.CentroDeVida = inscription.CentroDeVida
	}

	return &PostulantDocuments{
		Postulant: postulant,
		Documents: owned,
		Stats:     model.ComputeStats(owned),
	}, nil
}

// ownsDocument - принадлежит ли документ постулянту: по DNI документа,
// затем по ID пользователя, затем по DNI в пути файла.
func ownsDocument(d model.Document, user *model.User, dni string) bool {
	switch {
	case d.UserDNI != "":
		return d.UserDNI == dni
	case d.UserID != "":
		return d.UserID == user.ID
	default:
		return d.FilePath != "" && strings.Contains(d.FilePath, dni)
	}
}

// enrichDocuments дополняет тип, обязательность, путь и размер.
// Размеры, которых нет в ответе backend, проверяются на диске
// параллельно с ограничением sizeProbeLimit.
func (s *PostulationService) enrichDocuments(ctx context.Context, docs []model.Document, dni string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeProbeLimit)

	for i := range docs {
		d := &docs[i]
		classifyDocument(d)
		if d.FilePath == "" {
			d.FilePath = docstore.DocumentPath(*d, dni)
		}
		if d.FileSize > 0 || s.files == nil {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			d.FileSize = s.files.FileSize(*d, dni)
			return nil
		})
	}
	return g.Wait()
}

// classifyDocument дополняет тип документа и признак обязательности.
func classifyDocument(d *model.Document) {
	if d.DocumentType == "" || d.DocumentType == model.DocTypeUnknown {
		d.DocumentType = model.InferDocumentType("", d.DocumentTypeName, firstNonEmpty(d.OriginalName, d.FileName))
	}
	d.IsRequired = model.IsRequiredDocumentType(d.DocumentType)
}

// contestInfo берёт конкурс инскрипции, иначе последний активный,
// иначе запасные значения.
func (s *PostulationService) contestInfo(ctx context.Context, ins *model.BackendInscription) ContestInfo {
	var (
		c   *model.Contest
		err error
	)
	if ins != nil && ins.ContestID > 0 {
		c, err = s.contests.GetByID(ctx, ins.ContestID)
		s.logContestLookup(err, slog.Int64("contest_id", ins.ContestID))
	}
	if c == nil {
		c, err = s.contests.LatestActive(ctx)
		s.logContestLookup(err, slog.String("lookup", "latest_active"))
	}

	if c == nil {
		info := ContestInfo{Title: FallbackContestTitle, Position: FallbackContestPosition}
		if ins != nil {
			info.ID = ins.ContestID
			info.Title = firstNonEmpty(ins.ContestTitle, info.Title)
			info.Position = firstNonEmpty(ins.ContestPosition, info.Position)
		}
		return info
	}

	return ContestInfo{
		ID:                   c.ID,
		Title:                firstNonEmpty(c.Title, FallbackContestTitle),
		Position:             firstNonEmpty(deref(c.Position), FallbackContestPosition),
		Category:             deref(c.Category),
		Department:           deref(c.Department),
		Status:               c.Status,
		InscriptionStartDate: c.InscriptionStartDate,
		InscriptionEndDate:   c.InscriptionEndDate,
	}
}

func (s *PostulationService) logContestLookup(err error, attr slog.Attr) {
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Не удалось получить конкурс", attr, slog.String("error", err.Error()))
	}
}

// --- Смена состояния инскрипции ---

// Approve одобряет постуляцию. Все обязательные документы должны
// быть одобрены.
func (s *PostulationService) Approve(ctx context.Context, dni string, in DecisionInput) (*model.BackendInscription, error) {
	agg, err := s.Documents(ctx, dni)
	if err != nil {
		return nil, err
	}
	if agg.Stats.ValidationStatus != model.ValidationCompleted {
		return nil, conflict(MsgRequiredDocsPending, fmt.Sprintf(
			"Obligatorios aprobados: %d de %d", agg.Stats.RequiredApproved, agg.Stats.Required))
	}

	id := in.InscriptionID
	if id == "" && agg.Postulant.Inscription != nil {
		id = agg.Postulant.Inscription.ID
	}
	return s.changeState(ctx, dni, id, model.InscriptionApproved, firstNonEmpty(in.Note, NoteApproved))
}

// Reject отклоняет постуляцию.
func (s *PostulationService) Reject(ctx context.Context, dni string, in DecisionInput) (*model.BackendInscription, error) {
	id, err := s.inscriptionID(ctx, dni, in.InscriptionID)
	if err != nil {
		return nil, err
	}
	return s.changeState(ctx, dni, id, model.InscriptionRejected, firstNonEmpty(in.Note, NoteRejected))
}

// StartValidation переводит инскрипцию в PENDING для проверки.
func (s *PostulationService) StartValidation(ctx context.Context, dni string, in DecisionInput) (*model.BackendInscription, error) {
	id, err := s.inscriptionID(ctx, dni, in.InscriptionID)
	if err != nil {
		return nil, err
	}
	return s.changeState(ctx, dni, id, model.InscriptionPending, firstNonEmpty(in.Note, NoteValidationStart))
}

// Revert возвращает инскрипцию в PENDING из REJECTED, APPROVED или
// COMPLETED.
func (s *PostulationService) Revert(ctx context.Context, dni string, in RevertInput) (*RevertResult, error) {
	ins, err := s.findInscription(ctx, dni, in.InscriptionID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(model.RevertibleInscriptionStates, ins.State) {
		return nil, conflict(MsgInscriptionNotRevertable,
			fmt.Sprintf("Estado actual: %s. Solo se pueden revertir %s",
				ins.State, strings.Join(model.RevertibleInscriptionStates, ", ")))
	}

	by := firstNonEmpty(in.RevertedBy, "admin")
	note := fmt.Sprintf("Estado revertido desde %s por %s - %s",
		ins.State, by, firstNonEmpty(in.Reason, "Revisión manual"))

	updated, err := s.changeState(ctx, dni, ins.ID, model.InscriptionPending, note)
	if err != nil {
		return nil, err
	}
	return &RevertResult{
		Inscription:   updated,
		PreviousState: ins.State,
		RevertedBy:    by,
		Note:          note,
	}, nil
}

func (s *PostulationService) changeState(ctx context.Context, dni, id, state, note string) (*model.BackendInscription, error) {
	if id == "" {
		return nil, invalid(MsgInscriptionRequired, nil)
	}
	ins, err := s.backend.ChangeInscriptionState(ctx, id, state, note)
	if err != nil {
		return nil, backendError("смена состояния инскрипции", err, MsgInscriptionNotFound)
	}
	s.logger.Info("Состояние инскрипции изменено",
		slog.String("dni", dni),
		slog.String("inscription_id", id),
		slog.String("state", state),
	)
	return ins, nil
}

// inscriptionID возвращает переданный ID или ID первой инскрипции
// постулянта.
func (s *PostulationService) inscriptionID(ctx context.Context, dni, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	ins, err := s.findInscription(ctx, dni, "")
	if err != nil {
		return "", err
	}
	return ins.ID, nil
}

// findInscription находит инскрипцию постулянта по ID или первую.
func (s *PostulationService) findInscription(ctx context.Context, dni, id string) (*model.BackendInscription, error) {
	user, err := s.FindUser(ctx, dni)
	if err != nil {
		return nil, err
	}
	page, err := s.backend.ListInscriptions(ctx, backendclient.InscriptionQuery{UserID: user.ID})
	if err != nil {
		return nil, backendError("инскрипции постулянта", err, "")
	}
	if len(page.Content) == 0 {
		return nil, invalid(MsgInscriptionRequired, nil)
	}
	if id == "" {
		return &page.Content[0], nil
	}
	for i := range page.Content {
		if page.Content[i].ID == id {
			return &page.Content[i], nil
		}
	}
	return nil, notFound(MsgInscriptionNotFound)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
