package domain

// ConsoleDashboard — сводка по активности конфигурирования согласований.
// Считается по журналу изменений (config_audit) за последний час.
type ConsoleDashboard struct {
	Activity  ConfigActivityStats `json:"activity"`  // Темп изменений
	Incidents ConfigIncidentStats `json:"incidents"` // Отказы
	Quality   ConfigQualityStats  `json:"quality"`   // SLO/SLI (Latency)
	Sessions  SessionStats        `json:"sessions"`  // Живые сессии редактирования
}

type ConfigActivityStats struct {
	MutationsLastHour int64            `json:"mutations_last_hour"`
	PerEntity         map[string]int64 `json:"per_entity"` // document / level / approver_group
}

type ConfigIncidentStats struct {
	BackendErrors        int64 `json:"backend_errors"`        // Отказы бэкенда платформы
	ValidationRejections int64 `json:"validation_rejections"` // Отбито локально, сети не было
}

type ConfigQualityStats struct {
	P95MutationLatency float64 `json:"p95_mutation_latency_ms"`
}

type SessionStats struct {
	ActiveSessions int `json:"active_sessions"`
}

// AuditFilter — параметры выборки журнала изменений.
// Пустые значения означают «без фильтра».
type AuditFilter struct {
	Entity        string `json:"entity"`
	OperatorID    string `json:"operator_id"`
	InstitutionID int64  `json:"institution_id"`
	Limit         int    `json:"limit"`
}
