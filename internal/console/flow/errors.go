package flow

import "errors"

var (
	// ErrSaveInFlight — повторное нажатие кнопки, пока предыдущая мутация
	// еще не завершилась. Дубликат отбрасывается без сетевого вызова.
	ErrSaveInFlight = errors.New("flow: save already in progress")

	ErrNothingPending = errors.New("flow: no deletion pending confirmation")
	ErrLevelNotFound  = errors.New("flow: level not found in document")
	ErrFlowNotFound   = errors.New("flow: editing session not found or expired")
)
