package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/backend"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

// GroupDeleteWarning показывается в модалке подтверждения: группа может
// входить в уровни действующих документов, удаление затронет их маршруты.
const GroupDeleteWarning = "Deleting this group may affect existing approval workflows that reference it."

// GroupManager — сессия отдельной страницы управления группами согласующих.
// Тот же валидатор и тот же клиент, что и у инлайнового создания в
// DocumentFlow: два пути создания группы не могут разойтись в правилах.
type GroupManager struct {
	deps   Deps
	logger *zap.Logger

	operatorID    string
	institutionID int64

	mu            sync.Mutex
	search        string
	page          int
	listing       *backend.Page[domain.ApproverGroup]
	saving        bool
	pendingDelete PendingDelete[int64]
}

func NewGroupManager(deps Deps, logger *zap.Logger, operatorID string, institutionID int64) *GroupManager {
	return &GroupManager{
		deps:          deps,
		logger:        logger.Named("group-manager"),
		operatorID:    operatorID,
		institutionID: institutionID,
		page:          1,
	}
}

// List загружает страницу групп по текущему поиску. Поиск и номер страницы
// запоминаются, чтобы Refresh после мутации вернул пользователя туда же.
func (m *GroupManager) List(ctx context.Context, search string, page int) (*backend.Page[domain.ApproverGroup], error) {
	if page < 1 {
		page = 1
	}
	p, err := m.deps.API.ListGroups(ctx, m.institutionID, search, page)
	if err != nil {
		return nil, fmt.Errorf("flow: list groups: %w", err)
	}

	m.mu.Lock()
	m.search = search
	m.page = page
	m.listing = p
	m.mu.Unlock()
	return p, nil
}

// Refresh перечитывает текущую страницу после успешной мутации.
func (m *GroupManager) Refresh(ctx context.Context) (*backend.Page[domain.ApproverGroup], error) {
	m.mu.Lock()
	search, page := m.search, m.page
	m.mu.Unlock()
	return m.List(ctx, search, page)
}

// Create создает группу. Невалидная форма отклоняется без сетевого вызова.
func (m *GroupManager) Create(ctx context.Context, in domain.GroupInput) (*domain.ApproverGroup, error) {
	in.InstitutionID = m.institutionID
	if res := domain.ValidateApproverGroup(in); !res.Valid() {
		m.deps.observeRejection("approver_group")
		return nil, res.Err()
	}

	if err := m.acquireSave(); err != nil {
		return nil, err
	}
	defer m.releaseSave()

	started := time.Now()
	g, err := m.deps.API.CreateGroup(ctx, in)

	m.deps.observeMutation("approver_group", "create", outcomeOf(err))
	m.deps.record(ctx, audit.Event{
		OperatorID: m.operatorID, InstitutionID: m.institutionID,
		Entity: "approver_group", Op: "create",
		EntityID: groupID(g), Outcome: outcomeOf(err), Detail: errDetail(err), Payload: in,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	m.notifyChanged(ctx)
	m.logger.Info("approver group created",
		zap.Int64("group_id", g.ID), zap.Int64("institution_id", m.institutionID))
	return g, nil
}

// Update редактирует существующую группу по тем же правилам, что и Create.
func (m *GroupManager) Update(ctx context.Context, id int64, in domain.GroupInput) (*domain.ApproverGroup, error) {
	in.InstitutionID = m.institutionID
	if res := domain.ValidateApproverGroup(in); !res.Valid() {
		m.deps.observeRejection("approver_group")
		return nil, res.Err()
	}

	if err := m.acquireSave(); err != nil {
		return nil, err
	}
	defer m.releaseSave()

	started := time.Now()
	g, err := m.deps.API.UpdateGroup(ctx, id, in)

	m.deps.observeMutation("approver_group", "update", outcomeOf(err))
	m.deps.record(ctx, audit.Event{
		OperatorID: m.operatorID, InstitutionID: m.institutionID,
		Entity: "approver_group", Op: "update",
		EntityID: id, Outcome: outcomeOf(err), Detail: errDetail(err), Payload: in,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	m.notifyChanged(ctx)
	return g, nil
}

// RequestDelete взводит подтверждение удаления. Сети нет; модалка должна
// показать GroupDeleteWarning.
func (m *GroupManager) RequestDelete(groupID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingDelete.Request(groupID)
}

// CancelDelete закрывает подтверждение без изменений.
func (m *GroupManager) CancelDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingDelete.Cancel()
}

// ConfirmDelete — вторая фаза: единственное место, где происходит DELETE.
func (m *GroupManager) ConfirmDelete(ctx context.Context) error {
	m.mu.Lock()
	id, ok := m.pendingDelete.Confirm()
	m.mu.Unlock()
	if !ok {
		return ErrNothingPending
	}

	started := time.Now()
	err := m.deps.API.DeleteGroup(ctx, id)

	m.deps.observeMutation("approver_group", "delete", outcomeOf(err))
	m.deps.record(ctx, audit.Event{
		OperatorID: m.operatorID, InstitutionID: m.institutionID,
		Entity: "approver_group", Op: "delete",
		EntityID: id, Outcome: outcomeOf(err), Detail: errDetail(err),
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return err
	}

	m.notifyChanged(ctx)
	m.logger.Info("approver group deleted",
		zap.Int64("group_id", id), zap.Int64("institution_id", m.institutionID))
	return nil
}

// PendingDeleteTarget — состояние модалки подтверждения (для рендера).
func (m *GroupManager) PendingDeleteTarget() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingDelete.Target()
}

func (m *GroupManager) InstitutionID() int64 { return m.institutionID }

func (m *GroupManager) acquireSave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saving {
		return ErrSaveInFlight
	}
	m.saving = true
	return nil
}

func (m *GroupManager) releaseSave() {
	m.mu.Lock()
	m.saving = false
	m.mu.Unlock()
}

func (m *GroupManager) notifyChanged(ctx context.Context) {
	if m.deps.Notifier != nil {
		m.deps.Notifier.GroupsChanged(ctx, m.institutionID)
	}
}
