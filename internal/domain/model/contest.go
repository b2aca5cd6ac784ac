// Пакет model - доменные модели Concursos Admin.
package model

import "time"

// Статусы конкурса.
const (
	ContestStatusActive                  = "ACTIVE"
	ContestStatusArchived                = "ARCHIVED"
	ContestStatusCancelled               = "CANCELLED"
	ContestStatusClosed                  = "CLOSED"
	ContestStatusDraft                   = "DRAFT"
	ContestStatusFinished                = "FINISHED"
	ContestStatusInEvaluation            = "IN_EVALUATION"
	ContestStatusPaused                  = "PAUSED"
	ContestStatusResultsPublished        = "RESULTS_PUBLISHED"
	ContestStatusScheduled               = "SCHEDULED"
	ContestStatusDocumentationValidation = "DOCUMENTATION_VALIDATION"
	ContestStatusApplicationValidation   = "APPLICATION_VALIDATION"
)

// ContestStatuses - допустимые статусы конкурса.
var ContestStatuses = []string{
	ContestStatusActive,
	ContestStatusArchived,
	ContestStatusCancelled,
	ContestStatusClosed,
	ContestStatusDraft,
	ContestStatusFinished,
	ContestStatusInEvaluation,
	ContestStatusPaused,
	ContestStatusResultsPublished,
	ContestStatusScheduled,
	ContestStatusDocumentationValidation,
	ContestStatusApplicationValidation,
}

// Категории конкурса.
const (
	CategoryManagement  = "FUNCIONARIOS Y PERSONAL JERÁRQUICO"
	CategoryMagistrates = "MAGISTRADOS"
	CategoryEmployees   = "EMPLEADOS"
)

// ContestCategories - допустимые категории.
var ContestCategories = []string{CategoryManagement, CategoryMagistrates, CategoryEmployees}

// ContestClasses - допустимые коды класса (01-13).
var ContestClasses = []string{
	"01", "02", "03", "04", "05", "06", "07",
	"08", "09", "10", "11", "12", "13",
}

// ContestPositions - допустимые должности.
var ContestPositions = []string{
	"Defensor/a Civil",
	"Defensor/a Civil Adjunto/a",
	"Defensor/a Penal",
	"Defensor/a Penal Adjunto/a",
	"Defensor/a Penal Juvenil",
	"Defensor/a Penal Juvenil Adjunto/a",
	"Asesor/a de Incapaces",
	"Asesor/a de Incapaces Adjunto/a",
	"Codefensor/a de Familia",
	"Codefensor/a de Familia Adjunto/a",
	"Secretario/a Legal y Técnico/a",
	"Secretario/a General",
	"Jefe/a Administrativo/Contable",
	"Personal de Recursos Humanos",
	"Responsable de Informática",
	"Personal de Servicios",
	"Chófer",
	"Especialista en Desarrollo Tecnológico",
	"Auditor/a de Control de Gestión",
}

// ManagementPositions - должности, обычно относящиеся к категории
// CategoryManagement.
var ManagementPositions = []string{
	"Secretario/a Legal y Técnico/a",
	"Secretario/a General",
	"Jefe/a Administrativo/Contable",
	"Auditor/a de Control de Gestión",
}

// Contest - конкурс. Хранится в таблице contests.
// JSON-имена совпадают с контрактом фронтенда: часть полей в snake_case
// (class_, bases_url, description_url), даты в camelCase.
type Contest struct {
	ID                   int64      `json:"id"`
	Title                string     `json:"title"`
	Category             *string    `json:"category"`
	Class                *string    `json:"class_"`
	Department           *string    `json:"department"`
	Position             *string    `json:"position"`
	Functions            *string    `json:"functions"`
	Status               string     `json:"status"`
	StartDate            *time.Time `json:"startDate"`
	EndDate              *time.Time `json:"endDate"`
	InscriptionStartDate *time.Time `json:"inscriptionStartDate"`
	InscriptionEndDate   *time.Time `json:"inscriptionEndDate"`
	BasesURL             *string    `json:"bases_url"`
	DescriptionURL       *string    `json:"description_url"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// ContestFilter - фильтры списка конкурсов.
type ContestFilter struct {
	Status     string
	Search     string
	Category   string
	Department string
}

// Inscription - инскрипция пользователя на конкурс (таблица inscriptions,
// только чтение).
type Inscription struct {
	ID        string
	ContestID int64
	UserID    string
	State     string
	CreatedAt time.Time
}
