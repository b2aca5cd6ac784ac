package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/cache"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

func newTestUsers(b *fakeBackend) *UserService {
	return NewUserService(b, cache.New("users", 100, 30*time.Second, nil, testLogger()), testLogger())
}

func TestUserService_ListCached(t *testing.T) {
	b := testBackend()
	svc := newTestUsers(b)
	ctx := context.Background()

	first, err := svc.List(ctx, model.UserFilter{Page: 0, Size: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	second, err := svc.List(ctx, model.UserFilter{Page: 0, Size: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached: %v, %v", first.Cached, second.Cached)
	}
	if b.listed != 1 {
		t.Errorf("обращений к backend = %d, ожидали 1", b.listed)
	}
	if len(second.Page.Content) != 2 {
		t.Errorf("пользователей из кэша = %d", len(second.Page.Content))
	}

	// Изменение сбрасывает кэш.
	if _, err := svc.Update(ctx, "u-2", model.UserInput{}, "block"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	third, _ := svc.List(ctx, model.UserFilter{Page: 0, Size: 10})
	if third.Cached || b.listed != 2 {
		t.Errorf("после изменения ожидали запрос к backend (listed=%d)", b.listed)
	}
}

func TestUserService_Actions(t *testing.T) {
	b := testBackend()
	svc := newTestUsers(b)

	for action, status := range map[string]string{
		"activate":   model.UserStatusActive,
		"deactivate": model.UserStatusInactive,
		"block":      model.UserStatusBlocked,
	} {
		u, err := svc.Update(context.Background(), "u-1", model.UserInput{Password: strPtr("ignored1")}, action)
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if u.Status != status {
			t.Errorf("%s: status = %s", action, u.Status)
		}
		if b.updates["u-1"].Password != nil {
			t.Errorf("%s: пароль не должен передаваться", action)
		}
	}

	_, err := svc.Update(context.Background(), "u-1", model.UserInput{}, "promote")
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Message != MsgUserInvalidAction {
		t.Errorf("ожидали %q, получили %v", MsgUserInvalidAction, err)
	}

	_, err = svc.Update(context.Background(), "u-1", model.UserInput{}, "")
	if !errors.As(err, &svcErr) || svcErr.Message != MsgUserNoFields {
		t.Errorf("ожидали %q, получили %v", MsgUserNoFields, err)
	}

	if _, err := svc.Update(context.Background(), "nope", model.UserInput{}, "block"); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный пользователь: %v", err)
	}
}

func TestUserService_CreateValidation(t *testing.T) {
	svc := newTestUsers(testBackend())

	_, err := svc.Create(context.Background(), model.UserInput{
		Username: strPtr("ab"),
		Email:    strPtr("no-es-email"),
		Password: strPtr("corta"),
		Role:     strPtr("ROLE_ROOT"),
	})
	var svcErr *Error
	if !errors.As(err, &svcErr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
	for _, field := range []string{"username", "email", "password", "role"} {
		if len(svcErr.Fields[field]) == 0 {
			t.Errorf("нет ошибки для %s: %v", field, svcErr.Fields)
		}
	}

	u, err := svc.Create(context.Background(), model.UserInput{
		Username: strPtr("jperez"),
		Email:    strPtr("jperez@mpd.gov.ar"),
		Password: strPtr("secreta123"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Username != "jperez" {
		t.Errorf("user = %+v", u)
	}
}

func TestUserService_EmailMustBeBareAddress(t *testing.T) {
	svc := newTestUsers(testBackend())

	for _, email := range []string{"Juan Pérez <jperez@mpd.gov.ar>", "<jperez@mpd.gov.ar>", "jperez"} {
		_, err := svc.Create(context.Background(), model.UserInput{
			Username: strPtr("jperez"),
			Email:    strPtr(email),
			Password: strPtr("secreta123"),
		})
		var svcErr *Error
		if !errors.As(err, &svcErr) || len(svcErr.Fields["email"]) == 0 {
			t.Errorf("%q: ожидали ошибку email, получили %v", email, err)
		}
	}
}

func TestUserService_GetAndDelete(t *testing.T) {
	b := testBackend()
	svc := newTestUsers(b)

	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: %v", err)
	}
	if err := svc.Delete(context.Background(), "u-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(b.deleted) != 1 || b.deleted[0] != "u-1" {
		t.Errorf("deleted = %v", b.deleted)
	}
}

func TestUserService_Export(t *testing.T) {
	created := time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)
	b := &fakeBackend{users: []model.User{
		{ID: "u-1", Username: "aperez", FirstName: "Ana", LastName: "Pérez", Email: "ana@correo.com",
			Role: model.RoleUser, Status: model.UserStatusActive, CreatedAt: &created},
		{ID: "u-2", Username: "bdiaz", FullName: "Bruno Díaz"},
	}}
	svc := newTestUsers(b)

	res, err := svc.Export(context.Background(), model.UserFilter{Search: " perez ", Role: "all", Status: model.UserStatusActive})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Data.Columns) != 13 || res.Data.Columns[0] != "ID" {
		t.Errorf("columns = %v", res.Data.Columns)
	}
	// Фильтр по search в фейке идёт по username.
	if len(res.Data.Rows) != 1 {
		t.Fatalf("rows = %v", res.Data.Rows)
	}
	row := res.Data.Rows[0]
	if row[1] != "Ana Pérez" || row[4] != "aperez" || row[10] != "03/02/2026 10:30:00" || row[12] != row[10] {
		t.Errorf("row = %v", row)
	}
	if !strings.HasPrefix(res.FileName, "usuarios_") || !strings.HasSuffix(res.FileName, "_busqueda-perez_estado-ACTIVE.csv") {
		t.Errorf("file name = %s", res.FileName)
	}
}

func TestExportFileName(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	got := exportFileName(model.UserFilter{Search: "José M.", Role: "ROLE_ADMIN"}, now)
	if got != "usuarios_20260501T080000_busqueda-Jos__M__rol-ROLE_ADMIN.csv" {
		t.Errorf("exportFileName = %s", got)
	}
}
