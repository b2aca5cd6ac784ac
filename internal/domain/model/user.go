package model

import "time"

// Роли пользователей backend.
const (
	RoleAdmin = "ROLE_ADMIN"
	RoleUser  = "ROLE_USER"
)

// Статусы пользователей backend.
const (
	UserStatusActive   = "ACTIVE"
	UserStatusBlocked  = "BLOCKED"
	UserStatusInactive = "INACTIVE"
)

// User - пользователь backend-сервиса. Не хранится локально:
// читается и изменяется только через backend client.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	DNI       string     `json:"dni"`
	CUIT      string     `json:"cuit,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	FullName  string     `json:"fullName"`
	Telefono  string     `json:"telefono,omitempty"`
	Localidad string     `json:"localidad,omitempty"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// UserFilter - параметры списка пользователей.
type UserFilter struct {
	Search    string
	Role      string
	Status    string
	Page      int
	Size      int
	Sort      string
	Direction string
}

// UserInput - данные создания/изменения пользователя.
// nil-поля при PATCH не изменяются.
type UserInput struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
	DNI       *string `json:"dni,omitempty"`
	CUIT      *string `json:"cuit,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Telefono  *string `json:"telefono,omitempty"`
	Localidad *string `json:"localidad,omitempty"`
	Role      *string `json:"role,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// BackendInscription - инскрипция в представлении backend.
type BackendInscription struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"userId"`
	ContestID           int64      `json:"contestId"`
	State               string     `json:"state"`
	CurrentStep         string     `json:"currentStep,omitempty"`
	CentroDeVida        string     `json:"centroDeVida,omitempty"`
	DocumentosCompletos bool       `json:"documentosCompletos"`
	InscriptionDate     *time.Time `json:"inscriptionDate,omitempty"`
	UserDNI             string     `json:"userDni,omitempty"`
	UserFullName        string     `json:"userFullName,omitempty"`
	UserEmail           string     `json:"userEmail,omitempty"`
	ContestTitle        string     `json:"contestTitle,omitempty"`
	ContestPosition     string     `json:"contestPosition,omitempty"`
}

// Состояния инскрипции, с которыми работает админка.
const (
	InscriptionActive            = "ACTIVE"
	InscriptionPending           = "PENDING"
	InscriptionApproved          = "APPROVED"
	InscriptionRejected          = "REJECTED"
	InscriptionCompleted         = "COMPLETED"
	InscriptionCompletedWithDocs = "COMPLETED_WITH_DOCS"
)

// RevertibleInscriptionStates - состояния, из которых инскрипцию можно
// вернуть в PENDING.
var RevertibleInscriptionStates = []string{
	InscriptionRejected,
	InscriptionApproved,
	InscriptionCompleted,
}

// ReviewQueueStates - состояния инскрипций в очереди проверки.
var ReviewQueueStates = []string{
	InscriptionCompletedWithDocs,
	InscriptionPending,
}

// Page - страница результатов backend.
type Page[T any] struct {
	Content       []T  `json:"content"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	Size          int  `json:"size"`
	Number        int  `json:"number"`
	First         bool `json:"first"`
	Last          bool `json:"last"`
}
