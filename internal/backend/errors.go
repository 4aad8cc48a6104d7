package backend

import (
	"errors"
	"fmt"
	"time"
)

// APIError — отказ бэкенда платформы. Сохраняем detail, чтобы UI мог показать
// «дефолтное сообщение + уточнение сервера» (политика surfacing ошибок).
type APIError struct {
	StatusCode int
	Detail     string
	Op         string // логическая операция, напр. "create_document"
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s failed with status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// IsNotFound — навигация на невалидный ID рендерится отдельным состоянием
// "not found", а не тостом.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// Detail достает серверное уточнение, если оно есть.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// ThrottleError — бэкенд попросил притормозить (429 + Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
