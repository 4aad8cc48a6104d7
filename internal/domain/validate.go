package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

/*
Файл validate.go — единственный источник правил клиентской валидации.

Правила "имя обязательно" и "хотя бы один из X/Y" повторяются в трех точках
входа (страница создания, страница редактирования, отдельный менеджер групп).
Чтобы формы не разъезжались, все точки входа обязаны вызывать эти чистые
функции и не дублировать проверки у себя.
*/

const maxGroupDescriptionLen = 1000

// ValidationResult — результат локальной проверки формы.
// Пока Errors не пуст, сетевой вызов делать нельзя.
type ValidationResult struct {
	Errors []string `json:"errors"`
}

func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err сворачивает результат в error для передачи вверх по стеку.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Result: r}
}

// ValidationError — ошибка, обнаруженная локально, ДО сетевого вызова.
// Хендлеры маппят её в 400/422, а не в 502.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return "validation: " + strings.Join(e.Result.Errors, "; ")
}

// ValidateApproverGroup проверяет форму группы согласующих.
// Инвариант: имя непустое И (users + roles >= 1).
func ValidateApproverGroup(in GroupInput) ValidationResult {
	var res ValidationResult

	if in.InstitutionID == 0 {
		res.Errors = append(res.Errors, "institution is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		res.Errors = append(res.Errors, "group name is required")
	}
	if len(in.UserIDs)+len(in.RoleIDs) == 0 {
		res.Errors = append(res.Errors, "at least one user or role is required")
	}
	if utf8.RuneCountInString(in.Description) > maxGroupDescriptionLen {
		res.Errors = append(res.Errors,
			fmt.Sprintf("description must be at most %d characters", maxGroupDescriptionLen))
	}

	return res
}

// ValidateLevel проверяет форму уровня согласования.
// Инвариант: имя непустое (после trim), approvers >= 1.
// Overriders опциональны и могут пересекаться с approvers — это не запрещено.
func ValidateLevel(in LevelInput) ValidationResult {
	var res ValidationResult

	if strings.TrimSpace(in.Name) == "" {
		res.Errors = append(res.Errors, "level name is required")
	}
	if len(in.ApproverGroupIDs) == 0 {
		res.Errors = append(res.Errors, "at least one approver group is required")
	}

	return res
}

// ValidateDocument проверяет форму документа.
// Инвариант: учреждение задано, actions >= 1.
func ValidateDocument(in DocumentInput) ValidationResult {
	var res ValidationResult

	if in.InstitutionID == 0 {
		res.Errors = append(res.Errors, "institution is required")
	}
	if len(in.ActionIDs) == 0 {
		res.Errors = append(res.Errors, "at least one action is required")
	}

	return res
}
