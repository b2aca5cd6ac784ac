package model

import (
	"strings"
	"time"
)

// Статусы валидации документа.
const (
	DocumentPending  = "PENDING"
	DocumentApproved = "APPROVED"
	DocumentRejected = "REJECTED"
)

// Итоговый статус валидации постулянта.
const (
	ValidationPending   = "PENDING"
	ValidationPartial   = "PARTIAL"
	ValidationCompleted = "COMPLETED"
	ValidationRejected  = "REJECTED"
)

// Коды типов документов.
const (
	DocTypeDNIFront       = "DNI_FRONTAL"
	DocTypeDNIBack        = "DNI_DORSO"
	DocTypeDegree         = "TITULO_UNIVERSITARIO_Y_CERTIFICADO_ANALITICO"
	DocTypeCriminalRecord = "ANTECEDENTES_PENALES"
	DocTypeNoSanctions    = "CERTIFICADO_SIN_SANCIONES"
	DocTypeSeniority      = "CERTIFICADO_PROFESIONAL_ANTIGUEDAD"
	DocTypeCUIL           = "CONSTANCIA_CUIL"
	DocTypeLeyMicaela     = "CERTIFICADO_LEY_MICAELA"
	DocTypeAdditional     = "DOCUMENTO_ADICIONAL"
	DocTypeUnknown        = "UNKNOWN"
)

// RequiredDocumentTypes - обязательные типы документов.
var RequiredDocumentTypes = []string{
	DocTypeDNIFront,
	DocTypeDNIBack,
	DocTypeDegree,
	DocTypeCriminalRecord,
	DocTypeNoSanctions,
	DocTypeSeniority,
	DocTypeCUIL,
}

// DocumentType - запись каталога типов документов backend.
type DocumentType struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Order    int    `json:"order"`
}

// DocumentTypeCatalog - каталог типов в порядке отображения.
var DocumentTypeCatalog = []DocumentType{
	{ID: "9A1230C71E4E431380D4BD4F21CD8C7F", Code: DocTypeDNIFront, Name: "DNI (Frontal)", Required: true, Order: 1},
	{ID: "2980B7A784E643F68D7C47AF4ACAF64B", Code: DocTypeDNIBack, Name: "DNI (Dorso)", Required: true, Order: 2},
	{ID: "99EECC88ABCA4086B9E5CE6F63EECAB7", Code: DocTypeCUIL, Name: "Constancia de CUIL", Required: true, Order: 3},
	{ID: "9FA271051CDE476989CB08587C92E930", Code: DocTypeCriminalRecord, Name: "Certificado de Antecedentes Penales", Required: true, Order: 4},
	{ID: "8C5FE4A7982D429081332CA24881A3B1", Code: DocTypeSeniority, Name: "Certificado de Antigüedad Profesional", Required: true, Order: 5},
	{ID: "E0022DE6F70D44A5930666F7059959D8", Code: DocTypeNoSanctions, Name: "Certificado Sin Sanciones Disciplinarias", Required: true, Order: 6},
	{ID: "EF5DEB6BAB24471CAF6DADBC4971DA29", Code: DocTypeDegree, Name: "Título Universitario y Certificado Analítico", Required: true, Order: 7},
	{ID: "E089FA5DE81F4892862C0F3F08931451", Code: DocTypeLeyMicaela, Name: "Certificado Ley Micaela", Required: false, Order: 8},
	{ID: "9A67E09E0FB64D108FCE99587974504B", Code: DocTypeAdditional, Name: "Documento Adicional", Required: false, Order: 99},
}

// IsRequiredDocumentType - входит ли код в список обязательных.
func IsRequiredDocumentType(code string) bool {
	for _, c := range RequiredDocumentTypes {
		if c == code {
			return true
		}
	}
	return false
}

// DocumentTypeByID ищет тип по идентификатору каталога.
func DocumentTypeByID(id string) (DocumentType, bool) {
	id = strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	for _, dt := range DocumentTypeCatalog {
		if dt.ID == id {
			return dt, true
		}
	}
	return DocumentType{}, false
}

// Document - документ постулянта, нормализованный из ответа backend.
type Document struct {
	ID               string     `json:"id"`
	FileName         string     `json:"fileName"`
	OriginalName     string     `json:"originalName"`
	FilePath         string     `json:"filePath"`
	FileSize         int64      `json:"fileSize"`
	ContentType      string     `json:"contentType,omitempty"`
	DocumentType     string     `json:"documentType"`
	DocumentTypeName string     `json:"documentTypeName,omitempty"`
	DocumentTypeID   string     `json:"documentTypeId,omitempty"`
	ValidationStatus string     `json:"validationStatus"`
	IsRequired       bool       `json:"isRequired"`
	UploadDate       *time.Time `json:"uploadDate,omitempty"`
	ValidatedAt      *time.Time `json:"validatedAt,omitempty"`
	ValidatedBy      string     `json:"validatedBy,omitempty"`
	Comments         string     `json:"comments,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
	UserDNI          string     `json:"userDni,omitempty"`
	UserID           string     `json:"userId,omitempty"`
}

// DocumentStats - агрегированная статистика документов постулянта.
type DocumentStats struct {
	Total                int    `json:"total"`
	Pending              int    `json:"pending"`
	Approved             int    `json:"approved"`
	Rejected             int    `json:"rejected"`
	Required             int    `json:"required"`
	RequiredApproved     int    `json:"requiredApproved"`
	RequiredRejected     int    `json:"requiredRejected"`
	CompletionPercentage int    `json:"completionPercentage"`
	ValidationStatus     string `json:"validationStatus"`
}

// StoredFile - файл в хранилище документов на диске.
type StoredFile struct {
	FileName     string    `json:"fileName"`
	FilePath     string    `json:"filePath"`
	FileSize     int64     `json:"fileSize"`
	ContentType  string    `json:"contentType"`
	LastModified time.Time `json:"lastModified"`
	IsAccessible bool      `json:"isAccessible"`
}
