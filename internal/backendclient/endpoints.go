package backendclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// DefaultInscriptionPageSize - размер страницы инскрипций по умолчанию.
const DefaultInscriptionPageSize = 1000

// --- Users API ---

// ListUsers возвращает страницу пользователей.
func (c *Client) ListUsers(ctx context.Context, f model.UserFilter) (*model.Page[model.User], error) {
	q := url.Values{}
	setIfNotEmpty(q, "search", f.Search)
	setIfNotEmpty(q, "role", f.Role)
	setIfNotEmpty(q, "status", f.Status)
	setIfPositive(q, "page", f.Page)
	setIfPositive(q, "size", f.Size)
	setIfNotEmpty(q, "sort", f.Sort)
	setIfNotEmpty(q, "direction", f.Direction)
	// page=0 - первая страница Spring Data, передаём явно.
	if f.Page == 0 && f.Size > 0 {
		q.Set("page", "0")
	}

	var raw rawPage[rawUser]
	if err := c.getJSON(ctx, "/users", q, &raw); err != nil {
		return nil, fmt.Errorf("список пользователей: %w", err)
	}
	return mapPage(raw, mapUser), nil
}

// GetUser возвращает пользователя по ID.
func (c *Client) GetUser(ctx context.Context, id string) (*model.User, error) {
	var raw rawUser
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, fmt.Errorf("получение пользователя %s: %w", id, err)
	}
	u := mapUser(raw)
	return &u, nil
}

// CreateUser создаёт пользователя.
func (c *Client) CreateUser(ctx context.Context, in model.UserInput) (*model.User, error) {
	var raw rawUser
	if err := c.sendJSON(ctx, http.MethodPost, "/users", in, &raw); err != nil {
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}
	u := mapUser(raw)
	return &u, nil
}

// UpdateUser изменяет пользователя (передаются только заданные поля).
func (c *Client) UpdateUser(ctx context.Context, id string, in model.UserInput) (*model.User, error) {
	var raw rawUser
	if err := c.sendJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(id), in, &raw); err != nil {
		return nil, fmt.Errorf("обновление пользователя %s: %w", id, err)
	}
	u := mapUser(raw)
	if u.ID == "" {
		u.ID = id
	}
	return &u, nil
}

// DeleteUser удаляет пользователя.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := c.sendJSON(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("удаление пользователя %s: %w", id, err)
	}
	return nil
}

// --- Inscriptions API ---

// InscriptionQuery - фильтры /admin/inscriptions.
type InscriptionQuery struct {
	UserID    string
	Status    string
	ContestID int64
	Page      int
	Size      int
}

// ListInscriptions возвращает инскрипции. Фильтр status передаётся
// backend как state; size по умолчанию 1000.
func (c *Client) ListInscriptions(ctx context.Context, f InscriptionQuery) (*model.Page[model.BackendInscription], error) {
	q := url.Values{}
	setIfNotEmpty(q, "userId", f.UserID)
	setIfNotEmpty(q, "state", f.Status)
	if f.ContestID > 0 {
		q.Set("contestId", strconv.FormatInt(f.ContestID, 10))
	}
	setIfPositive(q, "page", f.Page)
	size := f.Size
	if size <= 0 {
		size = DefaultInscriptionPageSize
	}
	q.Set("size", strconv.Itoa(size))

	var raw rawPage[rawInscription]
	if err := c.getJSON(ctx, "/admin/inscriptions", q, &raw); err != nil {
		return nil, fmt.Errorf("список инскрипций: %w", err)
	}
	return mapPage(raw, mapInscription), nil
}

type stateChangeRequest struct {
	InscriptionID string `json:"inscriptionId"`
	NewState      string `json:"newState"`
	Note          string `json:"note"`
}

// ChangeInscriptionState переводит инскрипцию в newState.
func (c *Client) ChangeInscriptionState(ctx context.Context, inscriptionID, newState, note string) (*model.BackendInscription, error) {
	var raw rawInscription
	body := stateChangeRequest{InscriptionID: inscriptionID, NewState: newState, Note: note}
	path := "/admin/inscriptions/" + url.PathEscape(inscriptionID) + "/state"
	if err := c.sendJSON(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, fmt.Errorf("смена состояния инскрипции %s: %w", inscriptionID, err)
	}
	ins := mapInscription(raw)
	if ins.ID == "" {
		ins.ID = inscriptionID
	}
	if ins.State == "" {
		ins.State = newState
	}
	return &ins, nil
}

// --- Documents API ---

// DocumentQuery - фильтры /admin/documents.
type DocumentQuery struct {
	UserID string
	Status string
	Search string
	Page   int
	Size   int
}

// ListDocuments возвращает документы.
func (c *Client) ListDocuments(ctx context.Context, f DocumentQuery) (*model.Page[model.Document], error) {
	q := url.Values{}
	setIfNotEmpty(q, "usuarioId", f.UserID)
	setIfNotEmpty(q, "estado", f.Status)
	setIfNotEmpty(q, "busqueda", f.Search)
	setIfPositive(q, "page", f.Page)
	setIfPositive(q, "size", f.Size)

	var raw rawPage[rawDocument]
	if err := c.getJSON(ctx, "/admin/documents", q, &raw); err != nil {
		return nil, fmt.Errorf("список документов: %w", err)
	}
	return mapPage(raw, mapDocument), nil
}

// DocumentStats возвращает сводную статистику документов.
func (c *Client) DocumentStats(ctx context.Context) (*DocumentStatistics, error) {
	var stats DocumentStatistics
	if err := c.getJSON(ctx, "/admin/documents/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("статистика документов: %w", err)
	}
	return &stats, nil
}

// ApproveDocument одобряет документ.
func (c *Client) ApproveDocument(ctx context.Context, id string) error {
	path := "/admin/documents/" + url.PathEscape(id) + "/approve"
	if err := c.sendJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("одобрение документа %s: %w", id, err)
	}
	return nil
}

// RejectDocument отклоняет документ с причиной.
func (c *Client) RejectDocument(ctx context.Context, id, reason string) error {
	path := "/admin/documents/" + url.PathEscape(id) + "/reject"
	body := map[string]string{"motivo": reason}
	if err := c.sendJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("отклонение документа %s: %w", id, err)
	}
	return nil
}

// DeleteDocument удаляет документ.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if err := c.sendJSON(ctx, http.MethodDelete, "/admin/documents/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("удаление документа %s: %w", id, err)
	}
	return nil
}

// FileResponse - содержимое документа из backend. Body закрывает вызывающий.
type FileResponse struct {
	Body          io.ReadCloser
	ContentType   string
	FileName      string
	ContentLength int64
}

// DownloadDocument получает файл документа (GET /documents/{id}/file).
func (c *Client) DownloadDocument(ctx context.Context, id string) (*FileResponse, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/file", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("загрузка документа %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("загрузка документа %s: %w", id, readAPIError(resp))
	}

	fileName := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		fileName = params["filename"]
	}

	return &FileResponse{
		Body:          resp.Body,
		ContentType:   firstNonEmpty(resp.Header.Get("Content-Type"), "application/octet-stream"),
		FileName:      fileName,
		ContentLength: resp.ContentLength,
	}, nil
}

func setIfNotEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setIfPositive(q url.Values, key string, value int) {
	if value > 0 {
		q.Set(key, strconv.Itoa(value))
	}
}
