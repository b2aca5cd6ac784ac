package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

const (
	// exportPageSize - размер страницы при выгрузке пользователей.
	exportPageSize = 1000
	// exportMaxPages ограничивает выгрузку при неверном totalPages.
	exportMaxPages = 100
	// exportDateLayout - формат дат в выгрузке.
	exportDateLayout = "02/01/2006 15:04:05"
)

// filterAll - значение фильтра "без ограничения".
const filterAll = "all"

var userExportColumns = []string{
	"ID", "Nombre Completo", "Nombre", "Apellido", "Usuario", "Email", "Rol",
	"Estado", "Teléfono", "Localidad", "Fecha de Registro", "Fecha de Creación",
	"Fecha de Actualización",
}

// UserExport - выгрузка пользователей: таблица и имя файла.
type UserExport struct {
	FileName string
	Data     model.ReportData
}

// Export выгружает всех пользователей под фильтром search, role и
// status без постраничного ограничения. Значение "all" фильтр снимает.
func (s *UserService) Export(ctx context.Context, f model.UserFilter) (*UserExport, error) {
	f.Search = strings.TrimSpace(f.Search)
	if strings.EqualFold(f.Role, filterAll) {
		f.Role = ""
	}
	if strings.EqualFold(f.Status, filterAll) {
		f.Status = ""
	}
	f.Size = exportPageSize

	data := model.ReportData{Title: "Usuarios", Columns: userExportColumns, Rows: [][]string{}}
	for f.Page = 0; f.Page < exportMaxPages; f.Page++ {
		page, err := s.backend.ListUsers(ctx, f)
		if err != nil {
			return nil, backendError("выгрузка пользователей", err, "")
		}
		for _, u := range page.Content {
			data.Rows = append(data.Rows, userExportRow(u))
		}
		if len(page.Content) == 0 || f.Page+1 >= page.TotalPages {
			break
		}
	}

	s.logger.Info("Пользователи выгружены",
		slog.Int("rows", len(data.Rows)),
		slog.String("search", f.Search),
	)
	return &UserExport{FileName: exportFileName(f, time.Now()), Data: data}, nil
}

func userExportRow(u model.User) []string {
	fullName := firstNonEmpty(u.FullName, strings.TrimSpace(u.FirstName+" "+u.LastName))
	created := formatExportTime(u.CreatedAt)
	return []string{
		u.ID, fullName, u.FirstName, u.LastName, u.Username, u.Email, u.Role,
		u.Status, u.Telefono, u.Localidad, created, created,
		formatExportTime(firstTime(u.UpdatedAt, u.CreatedAt)),
	}
}

// exportFileName - usuarios_<время>[_busqueda-x][_rol-x][_estado-x].csv.
func exportFileName(f model.UserFilter, now time.Time) string {
	var b strings.Builder
	b.WriteString("usuarios_")
	b.WriteString(now.UTC().Format("20060102T150405"))
	if f.Search != "" {
		b.WriteString("_busqueda-" + fileSafe(f.Search))
	}
	if f.Role != "" {
		b.WriteString("_rol-" + fileSafe(f.Role))
	}
	if f.Status != "" {
		b.WriteString("_estado-" + fileSafe(f.Status))
	}
	b.WriteString(".csv")
	return b.String()
}

// fileSafe заменяет всё, кроме латинских букв, цифр и "_", на "_".
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return r
		}
		return '_'
	}, s)
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(exportDateLayout)
}

func firstTime(values ...*time.Time) *time.Time {
	for _, t := range values {
		if t != nil {
			return t
		}
	}
	return nil
}
