package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stateChange - вызов ChangeInscriptionState.
type stateChange struct {
	ID, State, Note string
}

// fakeBackend - backend в памяти.
type fakeBackend struct {
	mu sync.Mutex

	users        []model.User
	inscriptions []model.BackendInscription
	documents    []model.Document
	docStats     backendclient.DocumentStatistics
	err          error

	approved []string
	rejected map[string]string
	changes  []stateChange
	deleted  []string
	listed   int
	updates  map[string]model.UserInput

	// hook вызывается в начале ApproveDocument/RejectDocument.
	hook func(id string)
}

func (b *fakeBackend) ListUsers(_ context.Context, f model.UserFilter) (*model.Page[model.User], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listed++
	if b.err != nil {
		return nil, b.err
	}
	var out []model.User
	for _, u := range b.users {
		if f.Search == "" || strings.Contains(u.Username, f.Search) || strings.Contains(u.DNI, f.Search) {
			out = append(out, u)
		}
	}
	return &model.Page[model.User]{Content: out, TotalElements: len(out), TotalPages: 1}, nil
}

func (b *fakeBackend) GetUser(_ context.Context, id string) (*model.User, error) {
	for _, u := range b.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, &backendclient.APIError{StatusCode: 404, Message: "not found"}
}

func (b *fakeBackend) CreateUser(_ context.Context, in model.UserInput) (*model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := model.User{ID: "new", Username: *in.Username, Email: *in.Email}
	b.users = append(b.users, u)
	return &u, nil
}

func (b *fakeBackend) UpdateUser(_ context.Context, id string, in model.UserInput) (*model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updates == nil {
		b.updates = map[string]model.UserInput{}
	}
	b.updates[id] = in
	for i := range b.users {
		if b.users[i].ID == id {
			if in.Status != nil {
				b.users[i].Status = *in.Status
			}
			u := b.users[i]
			return &u, nil
		}
	}
	return nil, &backendclient.APIError{StatusCode: 404, Message: "not found"}
}

func (b *fakeBackend) DeleteUser(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBackend) ListInscriptions(_ context.Context, f backendclient.InscriptionQuery) (*model.Page[model.BackendInscription], error) {
	if b.err != nil {
		return nil, b.err
	}
	var out []model.BackendInscription
	for _, ins := range b.inscriptions {
		if f.UserID == "" || ins.UserID == f.UserID {
			out = append(out, ins)
		}
	}
	return &model.Page[model.BackendInscription]{Content: out, TotalElements: len(out)}, nil
}

func (b *fakeBackend) ChangeInscriptionState(_ context.Context, id, state, note string) (*model.BackendInscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, stateChange{ID: id, State: state, Note: note})
	return &model.BackendInscription{ID: id, State: state}, nil
}

func (b *fakeBackend) ListDocuments(_ context.Context, _ backendclient.DocumentQuery) (*model.Page[model.Document], error) {
	if b.err != nil {
		return nil, b.err
	}
	docs := append([]model.Document(nil), b.documents...)
	return &model.Page[model.Document]{Content: docs, TotalElements: len(docs)}, nil
}

func (b *fakeBackend) DocumentStats(context.Context) (*backendclient.DocumentStatistics, error) {
	if b.err != nil {
		return nil, b.err
	}
	st := b.docStats
	return &st, nil
}

func (b *fakeBackend) ApproveDocument(_ context.Context, id string) error {
	if b.hook != nil {
		b.hook(id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.approved = append(b.approved, id)
	return nil
}

func (b *fakeBackend) RejectDocument(_ context.Context, id, reason string) error {
	if b.hook != nil {
		b.hook(id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejected == nil {
		b.rejected = map[string]string{}
	}
	b.rejected[id] = reason
	return nil
}

func (b *fakeBackend) DownloadDocument(_ context.Context, id string) (*backendclient.FileResponse, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &backendclient.FileResponse{
		Body:          io.NopCloser(strings.NewReader("backend:" + id)),
		ContentType:   "application/pdf",
		FileName:      id + ".pdf",
		ContentLength: int64(len("backend:" + id)),
	}, nil
}

// fakeContests - репозиторий конкурсов в памяти.
type fakeContests struct {
	items       map[int64]*model.Contest
	active      *model.Contest
	inscripts   map[int64]int
	nextID      int64
	updateCalls int
	readErr     error
}

func newFakeContests(cs ...*model.Contest) *fakeContests {
	f := &fakeContests{items: map[int64]*model.Contest{}, inscripts: map[int64]int{}, nextID: 100}
	for _, c := range cs {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeContests) List(_ context.Context, _ model.ContestFilter, limit, offset int) ([]*model.Contest, error) {
	var out []*model.Contest
	for _, c := range f.items {
		out = append(out, c)
	}
	if offset >= len(out) {
		return []*model.Contest{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeContests) Count(context.Context, model.ContestFilter) (int, error) {
	return len(f.items), nil
}

func (f *fakeContests) GetByID(_ context.Context, id int64) (*model.Contest, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContests) LatestActive(context.Context) (*model.Contest, error) {
	if f.active == nil {
		return nil, repository.ErrNotFound
	}
	return f.active, nil
}

func (f *fakeContests) Create(_ context.Context, c *model.Contest) (int64, error) {
	f.nextID++
	cp := *c
	cp.ID = f.nextID
	f.items[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeContests) Update(_ context.Context, c *model.Contest) error {
	f.updateCalls++
	cp := *c
	f.items[c.ID] = &cp
	return nil
}

func (f *fakeContests) Delete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeContests) CountByStatus(context.Context) (map[string]int, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	counts := map[string]int{}
	for _, c := range f.items {
		counts[c.Status]++
	}
	return counts, nil
}

func (f *fakeContests) CountInscriptions(_ context.Context, id int64) (int, error) {
	return f.inscripts[id], nil
}

// fakeSizes - размеры файлов по ID документа.
type fakeSizes map[string]int64

func (s fakeSizes) FileSize(doc model.Document, _ string) int64 {
	return s[doc.ID]
}

func strPtr(s string) *string { return &s }
