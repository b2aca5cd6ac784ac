// users.go - пользователи backend: список с кэшем, создание с
// проверкой полей, изменение (в том числе действия activate, block и
// deactivate) и удаление. Любое изменение сбрасывает кэш списка.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Сообщения ответов по пользователям.
const (
	MsgUserNotFound       = "User not found"
	MsgUserIDRequired     = "User ID is required"
	MsgUserValidation     = "Validation error"
	MsgUserNoFields       = "No valid fields to update"
	MsgUserInvalidAction  = "Invalid action. Must be activate, deactivate, or block"
	MsgUserUsernameLength = "Username must be at least 3 characters"
	MsgUserUsernameLong   = "Username must be at most 50 characters"
	MsgUserEmailInvalid   = "Invalid email format"
	MsgUserPasswordShort  = "Password must be at least 8 characters"
	MsgUserRoleInvalid    = "Invalid role"
	MsgUserStatusInvalid  = "Invalid status"
	MsgUserDNIInvalid     = "DNI must contain 7 or 8 digits"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50
	passwordMinLength = 8
)

var (
	userRoles    = []string{model.RoleAdmin, model.RoleUser}
	userStatuses = []string{model.UserStatusActive, model.UserStatusInactive, model.UserStatusBlocked}
	// userActions - действия над пользователем и итоговый статус.
	userActions = map[string]string{
		"activate":   model.UserStatusActive,
		"deactivate": model.UserStatusInactive,
		"block":      model.UserStatusBlocked,
	}
)

// UserListResult - страница пользователей и признак ответа из кэша.
type UserListResult struct {
	Page   *model.Page[model.User]
	Cached bool
}

// UserService - сервис пользователей backend.
type UserService struct {
	backend Backend
	cache   *cache.Cache
	logger  *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(backend Backend, c *cache.Cache, logger *slog.Logger) *UserService {
	return &UserService{
		backend: backend,
		cache:   c,
		logger:  logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает пользователей по фильтру.
func (s *UserService) List(ctx context.Context, f model.UserFilter) (*UserListResult, error) {
	key := fmt.Sprintf("users-%s|%s|%s|%d|%d|%s|%s",
		f.Search, f.Role, f.Status, f.Page, f.Size, f.Sort, f.Direction)

	var page model.Page[model.User]
	if s.cache.Get(ctx, key, &page) {
		return &UserListResult{Page: &page, Cached: true}, nil
	}

	p, err := s.backend.ListUsers(ctx, f)
	if err != nil {
		return nil, backendError("список пользователей", err, "")
	}
	s.cache.Set(ctx, key, p)
	return &UserListResult{Page: p}, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, invalid(MsgUserIDRequired, nil)
	}
	u, err := s.backend.GetUser(ctx, id)
	if err != nil {
		return nil, backendError("пользователь", err, MsgUserNotFound)
	}
	return u, nil
}

// Create проверяет данные и создаёт пользователя.
func (s *UserService) Create(ctx context.Context, in model.UserInput) (*model.User, error) {
	if in.Role == nil {
		in.Role = ptrTo(model.RoleUser)
	}
	if in.Status == nil {
		in.Status = ptrTo(model.UserStatusActive)
	}
	if errs := validateUser(in, true); len(errs) > 0 {
		return nil, invalid(MsgUserValidation, errs)
	}

	u, err := s.backend.CreateUser(ctx, in)
	if err != nil {
		return nil, backendError("создание пользователя", err, "")
	}
	s.invalidate(ctx)
	s.logger.Info("Пользователь создан", slog.String("user_id", u.ID), slog.String("username", u.Username))
	return u, nil
}

// Update частично изменяет пользователя. action, если задан,
// переводится в статус.
func (s *UserService) Update(ctx context.Context, id string, in model.UserInput, action string) (*model.User, error) {
	if id == "" {
		return nil, invalid(MsgUserIDRequired, nil)
	}
	if action != "" {
		status, ok := userActions[action]
		if !ok {
			return nil, invalid(MsgUserInvalidAction, nil)
		}
		in.Status = &status
	}
	// Пароль через PATCH не меняется.
	in.Password = nil

	if in == (model.UserInput{}) {
		return nil, invalid(MsgUserNoFields, nil)
	}
	if errs := validateUser(in, false); len(errs) > 0 {
		return nil, invalid(MsgUserValidation, errs)
	}

	u, err := s.backend.UpdateUser(ctx, id, in)
	if err != nil {
		return nil, backendError("изменение пользователя", err, MsgUserNotFound)
	}
	s.invalidate(ctx)
	s.logger.Info("Пользователь изменён",
		slog.String("user_id", id),
		slog.String("action", action),
	)
	return u, nil
}

// Delete удаляет пользователя.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return invalid(MsgUserIDRequired, nil)
	}
	if err := s.backend.DeleteUser(ctx, id); err != nil {
		return backendError("удаление пользователя", err, MsgUserNotFound)
	}
	s.invalidate(ctx)
	s.logger.Info("Пользователь удалён", slog.String("user_id", id))
	return nil
}

func (s *UserService) invalidate(ctx context.Context) {
	s.cache.Clear(ctx)
}

// validateUser проверяет переданные поля. При создании обязательны
// username, email и password.
func validateUser(in model.UserInput, create bool) map[string][]string {
	errs := map[string][]string{}
	add := func(field, msg string) { errs[field] = append(errs[field], msg) }

	switch {
	case in.Username != nil:
		n := utf8.RuneCountInString(strings.TrimSpace(*in.Username))
		if n < usernameMinLength {
			add("username", MsgUserUsernameLength)
		} else if n > usernameMaxLength {
			add("username", MsgUserUsernameLong)
		}
	case create:
		add("username", MsgUserUsernameLength)
	}

	switch {
	case in.Email != nil:
		// Принимается только голый адрес: "Имя <a@b.c>" разбирается
		// без ошибки, но не годится для backend.
		email := strings.TrimSpace(*in.Email)
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			add("email", MsgUserEmailInvalid)
		}
	case create:
		add("email", MsgUserEmailInvalid)
	}

	switch {
	case in.Password != nil:
		if utf8.RuneCountInString(*in.Password) < passwordMinLength {
			add("password", MsgUserPasswordShort)
		}
	case create:
		add("password", MsgUserPasswordShort)
	}

	if in.Role != nil && !slices.Contains(userRoles, *in.Role) {
		add("role", MsgUserRoleInvalid)
	}
	if in.Status != nil && !slices.Contains(userStatuses, *in.Status) {
		add("status", MsgUserStatusInvalid)
	}
	if in.DNI != nil && !validDNI(*in.DNI) {
		add("dni", MsgUserDNIInvalid)
	}
	return errs
}

func validDNI(s string) bool {
	if len(s) < 7 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func ptrTo[T any](v T) *T { return &v }
