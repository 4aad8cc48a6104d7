package domain

// Справочные сущности платформы. Консоль их только читает:
// источником правды является бэкенд платформы (REST).

// Action — операция хост-системы, которую можно поставить под согласование
// (например, "delete branch"). Неизменяема с точки зрения консоли.
type Action struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ApprovableModel — тип сущности (content type), которым управляет
// ApprovalDocument: "Branch", "Task" и т.д.
type ApprovableModel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Role — роль в рамках учреждения (tenant). Используется в виджетах выбора.
type Role struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	InstitutionID int64  `json:"institution"`
}

// UserProfile — профиль пользователя платформы для виджетов выбора.
type UserProfile struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
