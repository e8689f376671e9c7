package apperr

import (
	"errors"
	"net/http"
)

// Ошибки предметной области. Слои выше оборачивают их через fmt.Errorf("...: %w", err)
var (
	ErrValidation    = errors.New("invalid request")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrRoomLocked    = errors.New("room is locked")
	ErrRateLimited   = errors.New("rate limited")
	ErrNotInRoom     = errors.New("not joined to room")
	ErrTooLarge      = errors.New("payload too large")
	ErrUnavailable   = errors.New("dependency unavailable")
	ErrCodeExhausted = errors.New("room code space exhausted")
	ErrDuplicate     = errors.New("duplicate key")
)

// Reason возвращает короткое описание ошибки без внутренних деталей
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		var v *ValidationError
		if errors.As(err, &v) {
			return v.Field + ": " + v.Problem
		}
		return "invalid request"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrForbidden):
		return "not allowed"
	case errors.Is(err, ErrRoomLocked):
		return "room is locked"
	case errors.Is(err, ErrRateLimited):
		return "too many requests, slow down"
	case errors.Is(err, ErrNotInRoom):
		return "join the room first"
	case errors.Is(err, ErrTooLarge):
		return "message too large"
	case errors.Is(err, ErrUnavailable):
		return "temporarily unavailable, retry later"
	default:
		return "internal error, retry later"
	}
}

// HTTPStatus сопоставляет ошибку со статусом ответа REST
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotInRoom):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomLocked):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError описывает конкретное нарушенное поле
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Problem }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, problem string) error {
	return &ValidationError{Field: field, Problem: problem}
}

// IsClientError сообщает, что ошибка вызвана запросом, а не сбоем сервера
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRoomLocked) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNotInRoom) ||
		errors.Is(err, ErrTooLarge)
}
