package domain

// EditableLevelIDs — нормализованная форма уровня для редактирования.
// Бэкенд отдает уровень с денормализованными approvers_detail/overriders_detail,
// а принимает на запись списки ID. Эта проекция — единственное место,
// где read-shape превращается обратно в write-shape.
type EditableLevelIDs struct {
	ApproverIDs  []int64 `json:"approver_ids"`
	OverriderIDs []int64 `json:"overrider_ids"`
}

// ToEditableIDs проецирует уровень в форму редактирования.
// Контракт: отправка результата без изменений обязана дать no-op diff
// относительно сохраненных на сервере множеств (round-trip).
func ToEditableIDs(level ApprovalDocumentLevel) EditableLevelIDs {
	out := EditableLevelIDs{
		ApproverIDs:  make([]int64, 0, len(level.ApproversDetail)),
		OverriderIDs: make([]int64, 0, len(level.OverridersDetail)),
	}

	// Источник правды — detail-представления; plain-списки ID бэкенд
	// может не прислать вовсе.
	for _, g := range level.ApproversDetail {
		out.ApproverIDs = append(out.ApproverIDs, g.ID)
	}
	for _, g := range level.OverridersDetail {
		out.OverriderIDs = append(out.OverriderIDs, g.ID)
	}

	// Fallback на нормализованные списки, если detail не заполнен
	if len(out.ApproverIDs) == 0 && len(level.Approvers) > 0 {
		out.ApproverIDs = append(out.ApproverIDs, level.Approvers...)
	}
	if len(out.OverriderIDs) == 0 && len(level.Overriders) > 0 {
		out.OverriderIDs = append(out.OverriderIDs, level.Overriders...)
	}

	return out
}

// ToLevelInput собирает форму редактирования из существующего уровня.
func ToLevelInput(level ApprovalDocumentLevel) LevelInput {
	ids := ToEditableIDs(level)
	return LevelInput{
		Name:              level.Name,
		Description:       level.Description,
		ApproverGroupIDs:  ids.ApproverIDs,
		OverriderGroupIDs: ids.OverriderIDs,
	}
}

// SameIDSet сравнивает два списка ID как множества (порядок не важен).
// Используется для проверки "изменилось ли что-то" перед отправкой.
func SameIDSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}
