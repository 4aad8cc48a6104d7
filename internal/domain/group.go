package domain

import "time"

// ApproverGroup — именованный набор пользователей и/или ролей, имеющих право
// согласовывать (или переопределять) уровень. Переиспользуется многими уровнями.
type ApproverGroup struct {
	ID            int64   `json:"id"`
	InstitutionID int64   `json:"institution"`
	Name          string  `json:"name"`
	Description   string  `json:"description"` // rich text, до 1000 символов
	Users         []int64 `json:"users"`
	Roles         []int64 `json:"roles"`

	// Денормализованные представления, которые считает бэкенд.
	// Консоль их не изменяет, только отображает.
	UsersDisplay []UserProfile `json:"users_display,omitempty"`
	RolesDisplay []Role        `json:"roles_display,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupInput — форма создания/редактирования группы.
// Одна и та же форма используется на отдельной странице и во встроенном
// диалоге уровня, поэтому валидация для них общая (см. validate.go).
type GroupInput struct {
	InstitutionID int64   `json:"institution"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	UserIDs       []int64 `json:"users"`
	RoleIDs       []int64 `json:"roles"`
}
