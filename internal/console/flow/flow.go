package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/backend"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra"
)

// BackendGateway Описываем, что флоу нужно от клиентского слоя платформы.
// Реализуется *backend.Client; в тестах подменяется записывающим моком.
type BackendGateway interface {
	ListActions(ctx context.Context) ([]domain.Action, error)
	ListApprovableModels(ctx context.Context) ([]domain.ApprovableModel, error)
	ListRoles(ctx context.Context, institutionID int64) ([]domain.Role, error)
	ListUserProfiles(ctx context.Context, page int) (*backend.Page[domain.UserProfile], error)

	GetDocument(ctx context.Context, id int64) (*domain.ApprovalDocument, error)
	CreateDocument(ctx context.Context, in domain.DocumentInput) (*domain.ApprovalDocument, error)
	UpdateDocument(ctx context.Context, id int64, in domain.DocumentInput) (*domain.ApprovalDocument, error)

	CreateLevel(ctx context.Context, documentID int64, in domain.LevelInput) (*domain.ApprovalDocumentLevel, error)
	UpdateLevel(ctx context.Context, levelID int64, in domain.LevelInput) (*domain.ApprovalDocumentLevel, error)
	DeleteLevel(ctx context.Context, levelID int64) error

	ListGroups(ctx context.Context, institutionID int64, search string, page int) (*backend.Page[domain.ApproverGroup], error)
	CreateGroup(ctx context.Context, in domain.GroupInput) (*domain.ApproverGroup, error)
	UpdateGroup(ctx context.Context, id int64, in domain.GroupInput) (*domain.ApproverGroup, error)
	DeleteGroup(ctx context.Context, id int64) error
}

// GroupsNotifier извещает остальные реплики консоли, что набор групп
// учреждения изменился (инвалидация кэша селекторов).
type GroupsNotifier interface {
	GroupsChanged(ctx context.Context, institutionID int64)
}

// MutationObserver — точка подключения метрик/аудита.
// Флоу не знает ни о Prometheus, ни о Postgres.
type MutationObserver interface {
	ValidationRejected(entity string)
	Mutation(entity, op, outcome string)
}

// Deps — зависимости оркестраторов.
type Deps struct {
	API      BackendGateway
	Audit    audit.Recorder   // может быть nil
	Notifier GroupsNotifier   // может быть nil
	Observer MutationObserver // может быть nil
}

func (d Deps) record(ctx context.Context, e audit.Event) {
	if d.Audit == nil {
		return
	}
	e.ID = uuid.New().String()
	e.TraceID = infra.TraceIDFromContext(ctx)
	e.Timestamp = time.Now()
	d.Audit.Log(e)
}

func (d Deps) observeRejection(entity string) {
	if d.Observer != nil {
		d.Observer.ValidationRejected(entity)
	}
}

func (d Deps) observeMutation(entity, op, outcome string) {
	if d.Observer != nil {
		d.Observer.Mutation(entity, op, outcome)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return audit.OutcomeSuccess
	}
	return audit.OutcomeBackendError
}

// errDetail — серверное уточнение для записи в журнал (пусто при успехе).
func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return backend.Detail(err)
}
