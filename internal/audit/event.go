package audit

import "time"

// Event — одна запись журнала изменений конфигурации согласований.
type Event struct {
	ID            string `json:"id"`       // UUID события
	TraceID       string `json:"trace_id"` // Сквозной ID запроса
	OperatorID    string `json:"operator_id"`
	InstitutionID int64  `json:"institution_id"`

	// Что меняли
	Entity   string `json:"entity"`    // "document", "level", "approver_group"
	EntityID int64  `json:"entity_id"` // 0, если создание не удалось
	Op       string `json:"op"`        // "create", "update", "delete"

	// Результат
	Outcome    string      `json:"outcome"` // "SUCCESS", "REJECTED", "BACKEND_ERROR"
	Detail     string      `json:"detail"`  // серверное пояснение при отказе
	Payload    interface{} `json:"payload"` // отправленная форма
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
}

// Исходы мутаций
const (
	OutcomeSuccess      = "SUCCESS"
	OutcomeRejected     = "REJECTED" // отбито локальной валидацией, сети не было
	OutcomeBackendError = "BACKEND_ERROR"
)
