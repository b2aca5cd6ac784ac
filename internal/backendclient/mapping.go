// mapping.go - нормализация ответов backend в доменные модели.
// Backend отдаёт одни и те же данные под разными именами полей
// (fileName/nombreArchivo, status/estado и т.д.). Все fallback-правила
// собраны здесь, остальной код работает только с model.*.
package backendclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// flexString принимает JSON-строку или число.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexTime принимает ISO-8601 с зоной и без неё; некорректное значение
// превращается в нулевое время, а не в ошибку декодирования.
type flexTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t flexTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// firstNonEmpty возвращает первое непустое значение.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstTime(values ...flexTime) *time.Time {
	for _, v := range values {
		if p := v.ptr(); p != nil {
			return p
		}
	}
	return nil
}

// rawPage - страница Spring Data.
type rawPage[T any] struct {
	Content       []T  `json:"content"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	Size          int  `json:"size"`
	Number        int  `json:"number"`
	First         bool `json:"first"`
	Last          bool `json:"last"`
}

func mapPage[R, T any](raw rawPage[R], fn func(R) T) *model.Page[T] {
	page := &model.Page[T]{
		Content:       make([]T, 0, len(raw.Content)),
		TotalElements: raw.TotalElements,
		TotalPages:    raw.TotalPages,
		Size:          raw.Size,
		Number:        raw.Number,
		First:         raw.First,
		Last:          raw.Last,
	}
	for _, r := range raw.Content {
		page.Content = append(page.Content, fn(r))
	}
	return page
}

// --- Users ---

type rawUser struct {
	ID        flexString `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	DNI       string     `json:"dni"`
	CUIT      string     `json:"cuit"`
	Name      string     `json:"name"`
	FullName  string     `json:"fullName"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Telefono  string     `json:"telefono"`
	Localidad string     `json:"localidad"`
	Role      string     `json:"role"`
	Roles     []string   `json:"roles"`
	Status    string     `json:"status"`
	CreatedAt flexTime   `json:"createdAt"`
	UpdatedAt flexTime   `json:"updatedAt"`
}

func mapUser(r rawUser) model.User {
	fullName := firstNonEmpty(r.FullName, r.Name,
		strings.TrimSpace(r.FirstName+" "+r.LastName))

	role := r.Role
	if role == "" && len(r.Roles) > 0 {
		role = r.Roles[0]
	}

	return model.User{
		ID:        string(r.ID),
		Username:  r.Username,
		Email:     r.Email,
		DNI:       r.DNI,
		CUIT:      r.CUIT,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		FullName:  fullName,
		Telefono:  r.Telefono,
		Localidad: r.Localidad,
		Role:      strings.ToUpper(firstNonEmpty(role, model.RoleUser)),
		Status:    strings.ToUpper(firstNonEmpty(r.Status, model.UserStatusActive)),
		CreatedAt: r.CreatedAt.ptr(),
		UpdatedAt: r.UpdatedAt.ptr(),
	}
}

// --- Inscriptions ---

type rawInscription struct {
	ID                  flexString `json:"id"`
	UserID              flexString `json:"userId"`
	UsuarioID           flexString `json:"usuarioId"`
	ContestID           flexString `json:"contestId"`
	State               string     `json:"state"`
	Status              string     `json:"status"`
	CurrentStep         string     `json:"currentStep"`
	CentroDeVida        string     `json:"centroDeVida"`
	DocumentosCompletos bool       `json:"documentosCompletos"`
	InscriptionDate     flexTime   `json:"inscriptionDate"`
	CreatedAt           flexTime   `json:"createdAt"`
	UserInfo            *struct {
		DNI      string `json:"dni"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	} `json:"userInfo"`
	ContestInfo *struct {
		Title    string `json:"title"`
		Position string `json:"position"`
	} `json:"contestInfo"`
}

func mapInscription(r rawInscription) model.BackendInscription {
	contestID, _ := strconv.ParseInt(string(r.ContestID), 10, 64)

	ins := model.BackendInscription{
		ID:                  string(r.ID),
		UserID:              firstNonEmpty(string(r.UserID), string(r.UsuarioID)),
		ContestID:           contestID,
		State:               strings.ToUpper(firstNonEmpty(r.State, r.Status)),
		CurrentStep:         r.CurrentStep,
		CentroDeVida:        r.CentroDeVida,
		DocumentosCompletos: r.DocumentosCompletos,
		InscriptionDate:     firstTime(r.InscriptionDate, r.CreatedAt),
	}
	if r.UserInfo != nil {
		ins.UserDNI = r.UserInfo.DNI
		ins.UserFullName = r.UserInfo.FullName
		ins.UserEmail = r.UserInfo.Email
	}
	if r.ContestInfo != nil {
		ins.ContestTitle = r.ContestInfo.Title
		ins.ContestPosition = r.ContestInfo.Position
	}
	return ins
}

// --- Documents ---

type rawDocumentType struct {
	ID        flexString `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Nombre    string     `json:"nombre"`
	Requerido bool       `json:"requerido"`
}

type rawDocument struct {
	ID              flexString       `json:"id"`
	DocumentID      flexString       `json:"documentId"`
	FileName        string           `json:"fileName"`
	NombreArchivo   string           `json:"nombreArchivo"`
	OriginalName    string           `json:"originalName"`
	Name            string           `json:"name"`
	FilePath        string           `json:"filePath"`
	RutaArchivo     string           `json:"rutaArchivo"`
	Path            string           `json:"path"`
	ContentType     string           `json:"contentType"`
	TipoContenido   string           `json:"tipoContenido"`
	MimeType        string           `json:"mimeType"`
	FileSize        int64            `json:"fileSize"`
	Size            int64            `json:"size"`
	Estado          string           `json:"estado"`
	Status          string           `json:"status"`
	UploadDate      flexTime         `json:"uploadDate"`
	FechaCarga      flexTime         `json:"fechaCarga"`
	CreatedAt       flexTime         `json:"createdAt"`
	ValidatedAt     flexTime         `json:"validatedAt"`
	FechaValidacion flexTime         `json:"fechaValidacion"`
	ValidatedBy     string           `json:"validatedBy"`
	ValidadoPor     string           `json:"validadoPor"`
	Comments        string           `json:"comments"`
	Comentarios     string           `json:"comentarios"`
	RejectionReason string           `json:"rejectionReason"`
	MotivoRechazo   string           `json:"motivoRechazo"`
	UserID          flexString       `json:"userId"`
	UsuarioID       flexString       `json:"usuarioId"`
	DNIUsuario      string           `json:"dniUsuario"`
	DocumentTypeID  flexString       `json:"documentTypeId"`
	TipoDocumentoID flexString       `json:"tipoDocumentoId"`
	TipoDocumento   *rawDocumentType `json:"tipoDocumento"`
	// DocumentType встречается и строкой-кодом, и объектом.
	DocumentType json.RawMessage `json:"documentType"`
}

// MapDocumentStatus приводит статус backend к PENDING/APPROVED/REJECTED.
// PROCESSING считается ожидающим, ERROR - отклонённым.
func MapDocumentStatus(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case model.DocumentApproved:
		return model.DocumentApproved
	case model.DocumentRejected, "ERROR":
		return model.DocumentRejected
	default:
		return model.DocumentPending
	}
}

// documentTypeRef извлекает код, имя и id типа из всех вариантов полей.
func (r rawDocument) documentTypeRef() (code, name, id string) {
	id = firstNonEmpty(string(r.DocumentTypeID), string(r.TipoDocumentoID))
	if r.TipoDocumento != nil {
		code = r.TipoDocumento.Code
		name = firstNonEmpty(r.TipoDocumento.Name, r.TipoDocumento.Nombre)
		id = firstNonEmpty(id, string(r.TipoDocumento.ID))
	}

	if len(r.DocumentType) > 0 && code == "" {
		var s string
		if json.Unmarshal(r.DocumentType, &s) == nil {
			code = s
		} else {
			var obj rawDocumentType
			if json.Unmarshal(r.DocumentType, &obj) == nil {
				code = obj.Code
				name = firstNonEmpty(name, obj.Name, obj.Nombre)
			}
		}
	}

	if code == "" && id != "" {
		if dt, ok := model.DocumentTypeByID(id); ok {
			code = dt.Code
		}
	}
	return code, name, id
}

func mapDocument(r rawDocument) model.Document {
	fileName := firstNonEmpty(r.FileName, r.NombreArchivo, r.Name, r.OriginalName)
	code, name, typeID := r.documentTypeRef()
	docType := model.InferDocumentType(code, name, fileName)

	typeName := name
	for _, dt := range model.DocumentTypeCatalog {
		if dt.Code == docType {
			typeName = dt.Name
			break
		}
	}

	size := r.FileSize
	if size <= 0 {
		size = r.Size
	}

	return model.Document{
		ID:               firstNonEmpty(string(r.ID), string(r.DocumentID)),
		FileName:         fileName,
		OriginalName:     firstNonEmpty(r.NombreArchivo, r.OriginalName, r.FileName, r.Name),
		FilePath:         firstNonEmpty(r.FilePath, r.RutaArchivo, r.Path),
		FileSize:         size,
		ContentType:      firstNonEmpty(r.ContentType, r.TipoContenido, r.MimeType),
		DocumentType:     docType,
		DocumentTypeName: typeName,
		DocumentTypeID:   typeID,
		ValidationStatus: MapDocumentStatus(firstNonEmpty(r.Estado, r.Status)),
		IsRequired:       model.IsRequiredDocumentType(docType),
		UploadDate:       firstTime(r.UploadDate, r.FechaCarga, r.CreatedAt),
		ValidatedAt:      firstTime(r.ValidatedAt, r.FechaValidacion),
		ValidatedBy:      firstNonEmpty(r.ValidatedBy, r.ValidadoPor),
		Comments:         firstNonEmpty(r.Comments, r.Comentarios),
		RejectionReason:  firstNonEmpty(r.RejectionReason, r.MotivoRechazo),
		UserDNI:          r.DNIUsuario,
		UserID:           firstNonEmpty(string(r.UsuarioID), string(r.UserID)),
	}
}

// DocumentStatistics - сводка GET /admin/documents/stats.
type DocumentStatistics struct {
	Total      int `json:"totalDocumentos"`
	Pending    int `json:"pendientes"`
	Approved   int `json:"aprobados"`
	Rejected   int `json:"rechazados"`
	Processing int `json:"procesando"`
	Errors     int `json:"errores"`
}
