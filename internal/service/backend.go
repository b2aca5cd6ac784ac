package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Backend - операции backend-сервиса, используемые сервисным слоем.
// Реализуется *backendclient.Client.
type Backend interface {
	ListUsers(ctx context.Context, f model.UserFilter) (*model.Page[model.User], error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, in model.UserInput) (*model.User, error)
	UpdateUser(ctx context.Context, id string, in model.UserInput) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error

	ListInscriptions(ctx context.Context, f backendclient.InscriptionQuery) (*model.Page[model.BackendInscription], error)
	ChangeInscriptionState(ctx context.Context, inscriptionID, newState, note string) (*model.BackendInscription, error)

	ListDocuments(ctx context.Context, f backendclient.DocumentQuery) (*model.Page[model.Document], error)
	DocumentStats(ctx context.Context) (*backendclient.DocumentStatistics, error)
	ApproveDocument(ctx context.Context, id string) error
	RejectDocument(ctx context.Context, id, reason string) error
	DownloadDocument(ctx context.Context, id string) (*backendclient.FileResponse, error)
}

var _ Backend = (*backendclient.Client)(nil)

// MsgBackendUnavailable - backend не отвечает.
const MsgBackendUnavailable = "No se pudo conectar con el servicio de backend"

// backendError переводит ошибку backend в ошибку сервиса:
// недоступность даёт ErrBackendUnavailable, 404 даёт ErrNotFound
// с сообщением notFoundMsg (если задано).
func backendError(op string, err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, backendclient.ErrUnavailable):
		return unavailable(MsgBackendUnavailable, err)
	case notFoundMsg != "" && backendclient.IsNotFound(err):
		return notFound(notFoundMsg)
	default:
		var apiErr *backendclient.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == http.StatusConflict:
				return &Error{Kind: ErrConflict, Message: apiErr.Message, cause: err}
			case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusUnauthorized:
				return &Error{Kind: ErrValidation, Message: apiErr.Message, cause: err}
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
}
