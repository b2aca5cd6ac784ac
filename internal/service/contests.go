// contests.go - сервис конкурсов: список с фильтрами и пагинацией,
// создание и изменение с валидацией, удаление при отсутствии инскрипций.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
	"github.com/mpd-concursos/concursos-admin/internal/validation"
)

// Сообщения ответов по конкурсам.
const (
	MsgContestNotFound      = "Concurso no encontrado"
	MsgContestValidation    = "Datos de validación incorrectos"
	MsgContestHasInscripts  = "No se puede eliminar el concurso porque tiene inscripciones asociadas"
	MsgContestIDRequired    = "ID del concurso es requerido"
	MsgContestCreated       = "Concurso creado exitosamente"
	MsgContestUpdated       = "Concurso actualizado exitosamente"
	msgContestDeletedFormat = "Concurso \"%s\" eliminado exitosamente"
)

// ContestPage - страница конкурсов.
type ContestPage struct {
	Items []*model.Contest
	Page  int
	Limit int
	Total int
	Pages int
}

// ContestResult - конкурс после сохранения и предупреждения бизнес-правил.
type ContestResult struct {
	Contest  *model.Contest
	Warnings []string
}

// ContestService - сервис конкурсов.
type ContestService struct {
	repo   repository.ContestRepository
	logger *slog.Logger
}

// NewContestService создаёт сервис конкурсов.
func NewContestService(repo repository.ContestRepository, logger *slog.Logger) *ContestService {
	return &ContestService{
		repo:   repo,
		logger: logger.With(slog.String("component", "contest_service")),
	}
}

// List возвращает страницу конкурсов. page и limit уже нормализованы.
func (s *ContestService) List(ctx context.Context, filter model.ContestFilter, page, limit int) (*ContestPage, error) {
	items, err := s.repo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ContestPage{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// Get возвращает конкурс по ID.
func (s *ContestService) Get(ctx context.Context, id int64) (*model.Contest, error) {
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound(MsgContestNotFound)
	}
	return c, err
}

// Create проверяет данные и создаёт конкурс.
func (s *ContestService) Create(ctx context.Context, in validation.ContestInput) (*ContestResult, error) {
	res := validation.ValidateContest(in, false)
	if !res.Success {
		return nil, invalid(MsgContestValidation, res.Errors)
	}

	c := &model.Contest{}
	applyContestData(c, res.Data)

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить созданный конкурс: %w", err)
	}

	s.logger.Info("Конкурс создан",
		slog.Int64("contest_id", id),
		slog.String("title", created.Title),
	)
	return &ContestResult{Contest: created, Warnings: validation.BusinessWarnings(created)}, nil
}

// Update частично обновляет конкурс. Перекрёстные правила дат
// применяются к итоговому состоянию после слияния, но только те,
// чьи даты есть в запросе.
func (s *ContestService) Update(ctx context.Context, in validation.ContestInput) (*ContestResult, error) {
	if in.ID == nil || *in.ID <= 0 {
		return nil, invalid(MsgContestIDRequired, nil)
	}

	res := validation.ValidateContest(in, true)
	if !res.Success {
		return nil, invalid(MsgContestValidation, res.Errors)
	}

	existing, err := s.repo.GetByID(ctx, res.Data.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(MsgContestNotFound)
		}
		return nil, err
	}

	applyContestData(existing, res.Data)
	if errs := validation.MergedDateOrderRules(
		existing.InscriptionStartDate, existing.InscriptionEndDate,
		existing.StartDate, existing.EndDate,
		res.Data,
	); len(errs) > 0 {
		return nil, invalid(MsgContestValidation, errs)
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить обновлённый конкурс: %w", err)
	}

	s.logger.Info("Конкурс обновлён", slog.Int64("contest_id", updated.ID))
	return &ContestResult{Contest: updated, Warnings: validation.BusinessWarnings(updated)}, nil
}

// Delete удаляет конкурс без инскрипций и возвращает сообщение об успехе.
func (s *ContestService) Delete(ctx context.Context, id int64) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", notFound(MsgContestNotFound)
		}
		return "", err
	}

	n, err := s.repo.CountInscriptions(ctx, id)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", conflict(MsgContestHasInscripts,
			fmt.Sprintf("El concurso \"%s\" tiene %d inscripciones", c.Title, n))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", notFound(MsgContestNotFound)
		}
		return "", err
	}

	s.logger.Info("Конкурс удалён", slog.Int64("contest_id", id), slog.String("title", c.Title))
	return fmt.Sprintf(msgContestDeletedFormat, c.Title), nil
}

// applyContestData переносит переданные поля в конкурс.
func applyContestData(c *model.Contest, d *validation.ContestData) {
	if d.Title != nil {
		c.Title = strings.TrimSpace(*d.Title)
	}
	if d.Status != nil {
		c.Status = *d.Status
	}
	setIfPresent(&c.Category, d.Category)
	setIfPresent(&c.Class, d.Class)
	setIfPresent(&c.Department, d.Department)
	setIfPresent(&c.Position, d.Position)
	setIfPresent(&c.Functions, d.Functions)
	setIfPresent(&c.BasesURL, d.BasesURL)
	setIfPresent(&c.DescriptionURL, d.DescriptionURL)

	if d.InscriptionStartDate != nil {
		c.InscriptionStartDate = d.InscriptionStartDate
	}
	if d.InscriptionEndDate != nil {
		c.InscriptionEndDate = d.InscriptionEndDate
	}
	switch {
	case d.ClearStartDate:
		c.StartDate = nil
	case d.StartDate != nil:
		c.StartDate = d.StartDate
	}
	switch {
	case d.ClearEndDate:
		c.EndDate = nil
	case d.EndDate != nil:
		c.EndDate = d.EndDate
	}
}

func setIfPresent(dst **string, v *string) {
	if v != nil {
		s := *v
		*dst = &s
	}
}
