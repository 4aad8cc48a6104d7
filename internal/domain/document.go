package domain

import (
	"errors"
	"time"
)

// Состояние документа в рамках сессии редактирования (one-way)
type DocumentState string

const (
	DocStateUncreated DocumentState = "UNCREATED"
	DocStateCreated   DocumentState = "CREATED"
)

var (
	ErrDocumentAlreadyCreated = errors.New("approval document already created in this session")
	ErrDocumentNotCreated     = errors.New("approval document does not exist yet")
)

// ApprovalDocumentLevel — один последовательный шаг согласования внутри
// документа. Принадлежит ровно одному документу (composition).
// Порядок задается индексом в Document.Levels.
type ApprovalDocumentLevel struct {
	ID          int64  `json:"id"`
	DocumentID  int64  `json:"approval_document"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Нормализованная форма записи (то, что консоль отправляет)
	Approvers  []int64 `json:"approvers"`
	Overriders []int64 `json:"overriders"`

	// Денормализованная форма чтения (то, что считает бэкенд).
	// Для редактирования проецируется обратно в списки ID (см. project.go).
	ApproversDetail  []ApproverGroup `json:"approvers_detail,omitempty"`
	OverridersDetail []ApproverGroup `json:"overriders_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApprovalDocument — корень workflow: ровно один документ на пару
// (учреждение, content type). Уникальность гарантирует бэкенд,
// консоль лишь блокирует повторное создание внутри сессии.
type ApprovalDocument struct {
	ID            int64   `json:"id"`
	InstitutionID int64   `json:"institution"`
	ContentTypeID int64   `json:"content_type"`
	Description   string  `json:"description"`
	ActionIDs     []int64 `json:"actions"`

	Levels []ApprovalDocumentLevel `json:"levels"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentInput — форма создания/редактирования верхнего уровня документа.
type DocumentInput struct {
	InstitutionID int64   `json:"institution"`
	ContentTypeID int64   `json:"content_type"`
	Description   string  `json:"description"`
	ActionIDs     []int64 `json:"actions"`
}

// LevelInput — форма создания/редактирования уровня.
type LevelInput struct {
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	ApproverGroupIDs  []int64 `json:"approvers"`
	OverriderGroupIDs []int64 `json:"overriders"`
}

// FindLevel возвращает уровень документа по ID (nil, если не найден).
func (d *ApprovalDocument) FindLevel(levelID int64) *ApprovalDocumentLevel {
	for i := range d.Levels {
		if d.Levels[i].ID == levelID {
			return &d.Levels[i]
		}
	}
	return nil
}
