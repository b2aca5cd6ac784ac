// validation_sessions.go - серверные сессии проверки документов
// постулянта. Сессия хранит список документов, текущий документ и
// статистику; одобрение и отклонение уходят в backend, возврат в
// PENDING остаётся только в сессии.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Сообщения ответов по сессиям проверки.
const (
	MsgSessionNotFound     = "Sesión de validación no encontrada"
	MsgDocumentNotFound    = "Documento no encontrado"
	MsgValidationInFlight  = "La validación de este documento ya está en curso"
	MsgRejectReasonMissing = "El motivo del rechazo es requerido"
)

// DefaultSessionTTL - время жизни сессии без обращений.
const DefaultSessionTTL = 2 * time.Hour

// SessionStats - статистика сессии. CompletionPercentage - доля
// просмотренных документов (одобренных или отклонённых).
type SessionStats struct {
	Total                int    `json:"total"`
	Pending              int    `json:"pending"`
	Approved             int    `json:"approved"`
	Rejected             int    `json:"rejected"`
	Required             int    `json:"required"`
	RequiredApproved     int    `json:"requiredApproved"`
	CompletionPercentage int    `json:"completionPercentage"`
	ValidationStatus     string `json:"validationStatus"`
}

// SessionView - снимок сессии для ответа API.
type SessionView struct {
	DNI             string           `json:"dni"`
	Postulant       Postulant        `json:"postulant"`
	Documents       []model.Document `json:"documents"`
	CurrentDocument *model.Document  `json:"currentDocument"`
	Stats           SessionStats     `json:"stats"`
	Submitting      bool             `json:"submitting"`
	StartedAt       time.Time        `json:"startedAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// DocumentDecision - данные одобрения или отклонения документа.
type DocumentDecision struct {
	Comments    string `json:"comments"`
	Reason      string `json:"reason"`
	ValidatedBy string `json:"-"`
}

type session struct {
	dni       string
	postulant Postulant
	docs      []model.Document
	current   int // -1, если документов нет
	inFlight  map[string]bool
	started   time.Time
	touched   time.Time
}

// ValidationSessions - хранилище сессий проверки.
type ValidationSessions struct {
	postulations *PostulationService
	backend      Backend
	ttl          time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewValidationSessions создаёт хранилище сессий. ttl <= 0 - DefaultSessionTTL.
func NewValidationSessions(postulations *PostulationService, backend Backend, ttl time.Duration, logger *slog.Logger) *ValidationSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &ValidationSessions{
		postulations: postulations,
		backend:      backend,
		ttl:          ttl,
		logger:       logger.With(slog.String("component", "validation_sessions")),
		sessions:     make(map[string]*session),
		now:          time.Now,
	}
}

// Start загружает документы постулянта и открывает новую сессию.
// Существующая сессия того же DNI заменяется.
func (v *ValidationSessions) Start(ctx context.Context, dni string) (*SessionView, error) {
	agg, err := v.postulations.Documents(ctx, dni)
	if err != nil {
		return nil, err
	}

	now := v.now()
	s := &session{
		dni:       dni,
		postulant: agg.Postulant,
		docs:      agg.Documents,
		current:   firstPending(agg.Documents),
		inFlight:  make(map[string]bool),
		started:   now,
		touched:   now,
	}

	v.mu.Lock()
	v.sessions[dni] = s
	view := s.view()
	v.mu.Unlock()

	v.logger.Info("Сессия проверки открыта",
		slog.String("dni", dni),
		slog.Int("documents", len(s.docs)),
	)
	return view, nil
}

// Get возвращает текущее состояние сессии.
func (v *ValidationSessions) Get(dni string) (*SessionView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.lookup(dni)
	if err != nil {
		return nil, err
	}
	return s.view(), nil
}

// Reset закрывает сессию. Возвращает false, если сессии не было.
func (v *ValidationSessions) Reset(dni string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.sessions[dni]
	delete(v.sessions, dni)
	return ok
}

// Approve одобряет документ в backend и отмечает его в сессии.
func (v *ValidationSessions) Approve(ctx context.Context, dni, docID string, d DocumentDecision) (*SessionView, error) {
	return v.decide(ctx, dni, docID, func() error {
		return v.backend.ApproveDocument(ctx, docID)
	}, func(doc *model.Document, at time.Time) {
		doc.ValidationStatus = model.DocumentApproved
		doc.ValidatedBy = d.ValidatedBy
		doc.ValidatedAt = &at
		doc.Comments = d.Comments
		doc.RejectionReason = ""
	})
}

// Reject отклоняет документ с обязательной причиной.
func (v *ValidationSessions) Reject(ctx context.Context, dni, docID string, d DocumentDecision) (*SessionView, error) {
	reason := strings.TrimSpace(d.Reason)
	if reason == "" {
		return nil, invalid(MsgRejectReasonMissing, map[string][]string{"reason": {MsgRejectReasonMissing}})
	}
	return v.decide(ctx, dni, docID, func() error {
		return v.backend.RejectDocument(ctx, docID, reason)
	}, func(doc *model.Document, at time.Time) {
		doc.ValidationStatus = model.DocumentRejected
		doc.ValidatedBy = d.ValidatedBy
		doc.ValidatedAt = &at
		doc.RejectionReason = reason
		doc.Comments = ""
	})
}

// decide выполняет решение по документу. На время вызова backend
// документ помечается занятым; повторное решение по нему получает
// ErrInProgress, решения по другим документам идут параллельно.
func (v *ValidationSessions) decide(
	ctx context.Context,
	dni, docID string,
	call func() error,
	apply func(doc *model.Document, at time.Time),
) (*SessionView, error) {
	v.mu.Lock()
	s, err := v.lookup(dni)
	if err == nil && s.index(docID) < 0 {
		err = notFound(MsgDocumentNotFound)
	}
	if err == nil && s.inFlight[docID] {
		err = &Error{Kind: ErrInProgress, Message: MsgValidationInFlight}
	}
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	s.inFlight[docID] = true
	v.mu.Unlock()

	callErr := call()

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(s.inFlight, docID)
	if callErr != nil {
		return nil, backendError("решение по документу", callErr, MsgDocumentNotFound)
	}

	// Решение уже сохранено в backend. Если сессию сбросили или
	// перезапустили во время вызова, ответ строится по отсоединённому
	// снимку, а текущая сессия не меняется.
	if cur, ok := v.sessions[dni]; !ok || cur != s {
		v.logger.Warn("Сессия закрыта во время решения по документу",
			slog.String("dni", dni),
			slog.String("document_id", docID),
		)
	}
	now := v.now()
	apply(&s.docs[s.index(docID)], now)
	s.touched = now
	return s.view(), nil
}

// Revert возвращает документ в PENDING только в сессии: в backend
// нет операции отмены решения.
func (v *ValidationSessions) Revert(dni, docID string) (*SessionView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.lookup(dni)
	if err != nil {
		return nil, err
	}
	i := s.index(docID)
	if i < 0 {
		return nil, notFound(MsgDocumentNotFound)
	}
	if s.inFlight[docID] {
		return nil, &Error{Kind: ErrInProgress, Message: MsgValidationInFlight}
	}

	doc := &s.docs[i]
	doc.ValidationStatus = model.DocumentPending
	doc.ValidatedBy = ""
	doc.ValidatedAt = nil
	doc.RejectionReason = ""
	doc.Comments = ""
	s.touched = v.now()

	v.logger.Warn("Решение по документу отменено только в сессии",
		slog.String("dni", dni),
		slog.String("document_id", docID),
	)
	return s.view(), nil
}

// Select делает документ текущим.
func (v *ValidationSessions) Select(dni, docID string) (*SessionView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.lookup(dni)
	if err != nil {
		return nil, err
	}
	i := s.index(docID)
	if i < 0 {
		return nil, notFound(MsgDocumentNotFound)
	}
	s.current = i
	s.touched = v.now()
	return s.view(), nil
}

// Next переходит к следующему документу в PENDING. На границе списка
// текущий документ не меняется и moved = false.
func (v *ValidationSessions) Next(dni string) (*SessionView, bool, error) {
	return v.move(dni, 1)
}

// Prev переходит к предыдущему документу в PENDING.
func (v *ValidationSessions) Prev(dni string) (*SessionView, bool, error) {
	return v.move(dni, -1)
}

func (v *ValidationSessions) move(dni string, step int) (*SessionView, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.lookup(dni)
	if err != nil {
		return nil, false, err
	}
	s.touched = v.now()
	for i := s.current + step; i >= 0 && i < len(s.docs); i += step {
		if s.docs[i].ValidationStatus == model.DocumentPending {
			s.current = i
			return s.view(), true, nil
		}
	}
	return s.view(), false, nil
}

// Sweep удаляет сессии без обращений дольше ttl и возвращает их число.
func (v *ValidationSessions) Sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for dni, s := range v.sessions {
		if v.expired(s) {
			delete(v.sessions, dni)
			removed++
		}
	}
	return removed
}

// Run периодически удаляет просроченные сессии до отмены ctx.
func (v *ValidationSessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := v.Sweep(); n > 0 {
				v.logger.Debug("Просроченные сессии удалены", slog.Int("count", n))
			}
		}
	}
}

// Count - число открытых сессий.
func (v *ValidationSessions) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.sessions)
}

// lookup возвращает живую сессию и продлевает её. Вызывается под v.mu.
func (v *ValidationSessions) lookup(dni string) (*session, error) {
	s, ok := v.sessions[dni]
	if !ok {
		return nil, notFound(MsgSessionNotFound)
	}
	if v.expired(s) {
		delete(v.sessions, dni)
		return nil, notFound(MsgSessionNotFound)
	}
	s.touched = v.now()
	return s, nil
}

func (v *ValidationSessions) expired(s *session) bool {
	return len(s.inFlight) == 0 && v.now().Sub(s.touched) > v.ttl
}

func (s *session) index(docID string) int {
	for i := range s.docs {
		if s.docs[i].ID == docID {
			return i
		}
	}
	return -1
}

// view копирует состояние сессии.
func (s *session) view() *SessionView {
	docs := make([]model.Document, len(s.docs))
	copy(docs, s.docs)

	st := model.ComputeStats(docs)
	view := &SessionView{
		DNI:       s.dni,
		Postulant: s.postulant,
		Documents: docs,
		Stats: SessionStats{
			Total:                st.Total,
			Pending:              st.Pending,
			Approved:             st.Approved,
			Rejected:             st.Rejected,
			Required:             st.Required,
			RequiredApproved:     st.RequiredApproved,
			CompletionPercentage: model.ReviewProgress(st),
			ValidationStatus:     st.ValidationStatus,
		},
		Submitting: len(s.inFlight) > 0,
		StartedAt:  s.started,
		UpdatedAt:  s.touched,
	}
	if s.current >= 0 && s.current < len(docs) {
		view.CurrentDocument = &docs[s.current]
	}
	return view
}

// firstPending - индекс первого документа в PENDING, иначе первого;
// -1 для пустого списка.
func firstPending(docs []model.Document) int {
	for i, d := range docs {
		if d.ValidationStatus == model.DocumentPending {
			return i
		}
	}
	if len(docs) == 0 {
		return -1
	}
	return 0
}
