// Пакет validation - правила проверки данных конкурса.
// ValidateContest и отдельные помощники (ValidateTitle, ValidateDates,
// ValidateFiles) построены на одних и тех же функциях правил, поэтому
// формулировки сообщений совпадают.
package validation

import (
	"bytes"
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Ограничения полей.
const (
	TitleMinLength      = 5
	TitleMaxLength      = 200
	FunctionsMaxLength  = 2000
	DepartmentMaxLength = 255
	forbiddenTitleChars = `<>"'&`
)

// Сообщения об ошибках (на испанском, как видит их администратор).
const (
	MsgTitleRequired          = "El título es requerido"
	MsgTitleTooShort          = "El título debe tener al menos 5 caracteres"
	MsgTitleTooLong           = "El título no puede exceder 200 caracteres"
	MsgTitleBlank             = "El título no puede estar vacío"
	MsgTitleForbiddenChars    = "El título contiene caracteres no permitidos"
	MsgStatusRequired         = "El estado es requerido"
	MsgStatusInvalid          = "Estado de concurso no válido"
	MsgCategoryInvalid        = "Categoría no válida"
	MsgClassInvalid           = "Clase no válida"
	MsgPositionInvalid        = "Cargo no válido"
	MsgFunctionsTooLong       = "La descripción de funciones no puede exceder 2000 caracteres"
	MsgDepartmentTooLong      = "El departamento no puede exceder 255 caracteres"
	MsgDepartmentInvalid      = "El departamento debe ser un texto o una lista de textos"
	MsgInscriptionStartReq    = "La fecha de inicio de inscripciones es obligatoria"
	MsgInscriptionEndReq      = "La fecha de fin de inscripciones es obligatoria"
	MsgInscriptionStartFormat = "La fecha de inicio de inscripciones debe ser una fecha válida"
	MsgInscriptionEndFormat   = "La fecha de fin de inscripciones debe ser una fecha válida"
	MsgStartDateFormat        = "La fecha de inicio del concurso debe ser una fecha válida"
	MsgEndDateFormat          = "La fecha de fin del concurso debe ser una fecha válida"
	MsgInscriptionOrder       = "La fecha de fin de inscripciones debe ser posterior al inicio"
	MsgContestOrder           = "La fecha de fin del concurso debe ser posterior al inicio"
	MsgStartAfterInscriptions = "El concurso debe iniciar después del fin de inscripciones"
	MsgBasesURLInvalid        = "La URL de las bases debe ser válida"
	MsgDescriptionURLInvalid  = "La URL de descripción debe ser válida"
	MsgIDRequired             = "El ID del concurso es requerido"
	MsgStartRequired          = "La fecha de inicio es requerida"
	MsgEndRequired            = "La fecha de fin es requerida"
	MsgEndBeforeStart         = "La fecha de fin debe ser posterior a la fecha de inicio"
)

// Пути полей в карте ошибок.
const (
	FieldID                   = "id"
	FieldTitle                = "title"
	FieldStatus               = "status"
	FieldCategory             = "category"
	FieldClass                = "class_"
	FieldPosition             = "position"
	FieldFunctions            = "functions"
	FieldDepartment           = "department"
	FieldStartDate            = "start_date"
	FieldEndDate              = "end_date"
	FieldInscriptionStartDate = "inscription_start_date"
	FieldInscriptionEndDate   = "inscription_end_date"
	FieldBasesURL             = "bases_url"
	FieldDescriptionURL       = "description_url"
)

// ContestInput - данные конкурса в том виде, в котором они пришли от клиента.
// nil означает, что поле не передано.
type ContestInput struct {
	ID                   *int64          `json:"id"`
	Title                *string         `json:"title"`
	Category             *string         `json:"category"`
	Class                *string         `json:"class_"`
	Department           json.RawMessage `json:"department"`
	Position             *string         `json:"position"`
	Functions            *string         `json:"functions"`
	Status               *string         `json:"status"`
	StartDate            *string         `json:"start_date"`
	EndDate              *string         `json:"end_date"`
	InscriptionStartDate *string         `json:"inscription_start_date"`
	InscriptionEndDate   *string         `json:"inscription_end_date"`
	BasesURL             *string         `json:"bases_url"`
	DescriptionURL       *string         `json:"description_url"`
}

// ContestData - проверенные и приведённые к типам данные конкурса.
// nil означает «не передано»; ClearStartDate/ClearEndDate - дата передана
// явно пустой и должна быть сброшена.
type ContestData struct {
	ID                   int64
	Title                *string
	Category             *string
	Class                *string
	Department           *string
	Position             *string
	Functions            *string
	Status               *string
	StartDate            *time.Time
	EndDate              *time.Time
	ClearStartDate       bool
	ClearEndDate         bool
	InscriptionStartDate *time.Time
	InscriptionEndDate   *time.Time
	BasesURL             *string
	DescriptionURL       *string
}

// Result - результат проверки. Ошибки сгруппированы по пути поля.
type Result struct {
	Success bool                `json:"success"`
	Errors  map[string][]string `json:"errors"`
	Data    *ContestData        `json:"-"`
}

type errorSet map[string][]string

func (e errorSet) add(field string, msgs ...string) {
	if len(msgs) == 0 {
		return
	}
	e[field] = append(e[field], msgs...)
}

// ValidateContest проверяет данные конкурса.
// При создании (isEdit=false) обязательны title, status и даты
// инскрипций. При редактировании обязателен только положительный id,
// остальные поля проверяются, если переданы. Перекрёстные проверки дат
// применяются, когда присутствуют оба поля. Функция не паникует и
// ошибок не возвращает.
func ValidateContest(in ContestInput, isEdit bool) Result {
	errs := errorSet{}
	data := &ContestData{}

	if isEdit {
		if in.ID == nil || *in.ID <= 0 {
			errs.add(FieldID, MsgIDRequired)
		} else {
			data.ID = *in.ID
		}
	}

	// --- Текстовые поля ---

	if in.Title == nil {
		if !isEdit {
			errs.add(FieldTitle, MsgTitleRequired)
		}
	} else {
		errs.add(FieldTitle, titleRules(*in.Title)...)
		data.Title = in.Title
	}

	if in.Status == nil || *in.Status == "" {
		if !isEdit {
			errs.add(FieldStatus, MsgStatusRequired)
		}
	} else if !slices.Contains(model.ContestStatuses, *in.Status) {
		errs.add(FieldStatus, MsgStatusInvalid)
	} else {
		data.Status = in.Status
	}

	data.Category = enumField(errs, FieldCategory, in.Category, model.ContestCategories, MsgCategoryInvalid)
	data.Class = enumField(errs, FieldClass, in.Class, model.ContestClasses, MsgClassInvalid)
	data.Position = enumField(errs, FieldPosition, in.Position, model.ContestPositions, MsgPositionInvalid)

	if in.Functions != nil {
		if utf8.RuneCountInString(*in.Functions) > FunctionsMaxLength {
			errs.add(FieldFunctions, MsgFunctionsTooLong)
		} else {
			data.Functions = in.Functions
		}
	}

	if dep, ok, msg := parseDepartment(in.Department); msg != "" {
		errs.add(FieldDepartment, msg)
	} else if ok {
		data.Department = &dep
	}

	// --- Даты ---

	var (
		insStart, insEnd, start, end *time.Time
		msg                          string
	)

	insStart, msg = requiredDate(in.InscriptionStartDate, !isEdit, MsgInscriptionStartReq, MsgInscriptionStartFormat)
	errs.add(FieldInscriptionStartDate, nonEmpty(msg)...)
	insEnd, msg = requiredDate(in.InscriptionEndDate, !isEdit, MsgInscriptionEndReq, MsgInscriptionEndFormat)
	errs.add(FieldInscriptionEndDate, nonEmpty(msg)...)

	start, data.ClearStartDate, msg = optionalDate(in.StartDate, MsgStartDateFormat)
	errs.add(FieldStartDate, nonEmpty(msg)...)
	end, data.ClearEndDate, msg = optionalDate(in.EndDate, MsgEndDateFormat)
	errs.add(FieldEndDate, nonEmpty(msg)...)

	data.InscriptionStartDate, data.InscriptionEndDate = insStart, insEnd
	data.StartDate, data.EndDate = start, end

	for field, msgs := range DateOrderRules(insStart, insEnd, start, end) {
		errs.add(field, msgs...)
	}

	// --- URL ---

	if in.BasesURL != nil {
		if !urlRule(*in.BasesURL) {
			errs.add(FieldBasesURL, MsgBasesURLInvalid)
		} else {
			data.BasesURL = in.BasesURL
		}
	}
	if in.DescriptionURL != nil {
		if !urlRule(*in.DescriptionURL) {
			errs.add(FieldDescriptionURL, MsgDescriptionURLInvalid)
		} else {
			data.DescriptionURL = in.DescriptionURL
		}
	}

	if len(errs) > 0 {
		return Result{Success: false, Errors: errs}
	}
	return Result{Success: true, Errors: map[string][]string{}, Data: data}
}

// DateOrderRules - перекрёстные проверки дат конкурса.
// Каждое правило применяется, только если обе его даты заданы.
func DateOrderRules(insStart, insEnd, start, end *time.Time) map[string][]string {
	errs := errorSet{}
	inscriptionOrderRule(errs, insStart, insEnd)
	contestOrderRule(errs, start, end)
	startAfterInscriptionsRule(errs, start, insEnd)
	return errs
}

// MergedDateOrderRules проверяет порядок дат конкурса после слияния
// с сохранённой записью. Правило применяется, только если хотя бы одна
// из его дат пришла в запросе: сохранённые данные не перепроверяются.
func MergedDateOrderRules(insStart, insEnd, start, end *time.Time, d *ContestData) map[string][]string {
	errs := errorSet{}
	hasInsStart := d.InscriptionStartDate != nil
	hasInsEnd := d.InscriptionEndDate != nil
	hasStart := d.StartDate != nil || d.ClearStartDate
	hasEnd := d.EndDate != nil || d.ClearEndDate

	if hasInsStart || hasInsEnd {
		inscriptionOrderRule(errs, insStart, insEnd)
	}
	if hasStart || hasEnd {
		contestOrderRule(errs, start, end)
	}
	if hasStart || hasInsEnd {
		startAfterInscriptionsRule(errs, start, insEnd)
	}
	return errs
}

func inscriptionOrderRule(errs errorSet, insStart, insEnd *time.Time) {
	if insStart != nil && insEnd != nil && !insEnd.After(*insStart) {
		errs.add(FieldInscriptionEndDate, MsgInscriptionOrder)
	}
}

func contestOrderRule(errs errorSet, start, end *time.Time) {
	if start != nil && end != nil && !end.After(*start) {
		errs.add(FieldEndDate, MsgContestOrder)
	}
}

func startAfterInscriptionsRule(errs errorSet, start, insEnd *time.Time) {
	if start != nil && insEnd != nil && start.Before(*insEnd) {
		errs.add(FieldStartDate, MsgStartAfterInscriptions)
	}
}

// ValidateTitle - проверка заголовка для форм.
func ValidateTitle(title string) []string {
	if strings.TrimSpace(title) == "" {
		return []string{MsgTitleRequired}
	}
	return titleRules(title)
}

// ValidateDates - проверка пары дат начала/окончания для форм.
func ValidateDates(start, end *time.Time) []string {
	var errs []string
	if start == nil {
		errs = append(errs, MsgStartRequired)
	}
	if end == nil {
		errs = append(errs, MsgEndRequired)
	}
	if start != nil && end != nil && !end.After(*start) {
		errs = append(errs, MsgEndBeforeStart)
	}
	return errs
}

// ValidateFiles - проверка ссылок на файлы конкурса. Пустые ссылки допустимы.
func ValidateFiles(basesURL, descriptionURL string) []string {
	var errs []string
	if !urlRule(basesURL) {
		errs = append(errs, MsgBasesURLInvalid)
	}
	if !urlRule(descriptionURL) {
		errs = append(errs, MsgDescriptionURLInvalid)
	}
	return errs
}

// --- Правила ---

// titleRules - правила для переданного заголовка.
func titleRules(title string) []string {
	var errs []string
	n := utf8.RuneCountInString(title)
	if n < TitleMinLength {
		errs = append(errs, MsgTitleTooShort)
	}
	if n > TitleMaxLength {
		errs = append(errs, MsgTitleTooLong)
	}
	if n > 0 && strings.TrimSpace(title) == "" {
		errs = append(errs, MsgTitleBlank)
	}
	if strings.ContainsAny(title, forbiddenTitleChars) {
		errs = append(errs, MsgTitleForbiddenChars)
	}
	return errs
}

// urlRule - пустая строка или абсолютный http(s) URL с хостом.
func urlRule(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func enumField(errs errorSet, field string, value *string, allowed []string, msg string) *string {
	if value == nil || *value == "" {
		return nil
	}
	if !slices.Contains(allowed, *value) {
		errs.add(field, msg)
		return nil
	}
	return value
}

// parseDepartment принимает строку или список строк. Список хранится
// одной строкой через ", ".
func parseDepartment(raw json.RawMessage) (dep string, ok bool, msg string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return "", false, MsgDepartmentInvalid
		}
		s = strings.Join(list, ", ")
	}
	if utf8.RuneCountInString(s) > DepartmentMaxLength {
		return "", false, MsgDepartmentTooLong
	}
	return s, true, ""
}

func requiredDate(raw *string, required bool, reqMsg, formatMsg string) (*time.Time, string) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		if required {
			return nil, reqMsg
		}
		return nil, ""
	}
	t, err := ParseDate(*raw)
	if err != nil {
		return nil, formatMsg
	}
	return &t, ""
}

// optionalDate разбирает необязательную дату. Пустая строка означает
// явный сброс значения.
func optionalDate(raw *string, formatMsg string) (t *time.Time, clear bool, msg string) {
	if raw == nil {
		return nil, false, ""
	}
	if strings.TrimSpace(*raw) == "" {
		return nil, true, ""
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return nil, false, formatMsg
	}
	return &parsed, false, ""
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate разбирает дату в форматах ISO 8601, которые присылает фронтенд.
// Даты без часового пояса считаются UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func nonEmpty(msg string) []string {
	if msg == "" {
		return nil
	}
	return []string{msg}
}
