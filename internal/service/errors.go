// errors.go - ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict - операция невозможна в текущем состоянии ресурса.
	ErrConflict = errors.New("конфликт состояния ресурса")
	// ErrValidation - ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrBackendUnavailable - backend-сервис недоступен.
	ErrBackendUnavailable = errors.New("backend недоступен")
	// ErrInProgress - такая же операция уже выполняется.
	ErrInProgress = errors.New("операция уже выполняется")
	// ErrForbidden - доступ к ресурсу запрещён.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrInternal - сбой операции с сообщением для клиента.
	ErrInternal = errors.New("внутренняя ошибка")
)

// Error - ошибка с сообщением для клиента. Kind - одна из
// sentinel-ошибок выше, по ней handler выбирает HTTP-статус.
type Error struct {
	Kind    error
	Message string
	Details string
	// Fields - ошибки по полям (для ErrValidation).
	Fields map[string][]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap позволяет errors.Is находить и Kind, и исходную причину.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func notFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func conflict(msg, details string) *Error {
	return &Error{Kind: ErrConflict, Message: msg, Details: details}
}

func invalid(msg string, fields map[string][]string) *Error {
	return &Error{Kind: ErrValidation, Message: msg, Fields: fields}
}

func unavailable(msg string, cause error) *Error {
	return &Error{Kind: ErrBackendUnavailable, Message: msg, Details: cause.Error(), cause: cause}
}
