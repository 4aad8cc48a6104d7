package flow

/*
Файл document_flow.go — оркестратор сборки одного ApprovalDocument.

Последовательность жестко упорядочена: документ → уровни → (по необходимости)
группы, создаваемые прямо из диалога уровня. Ни один шаг не может пройти вне
очереди: уровень нельзя создать до документа, документ нельзя создать без
единого Action. Все кросс-сущностные инварианты проверяются ЗДЕСЬ, до
какого-либо сетевого вызова; серверная валидация — только страховка.
*/

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

// EditorContext — справочные данные страницы редактирования.
// Загружается целиком; частично загруженный контекст не отдается никогда.
type EditorContext struct {
	Models  []domain.ApprovableModel `json:"models"`
	Actions []domain.Action          `json:"actions"`
	Users   []domain.UserProfile     `json:"users"`
	Roles   []domain.Role            `json:"roles"`
	Groups  []domain.ApproverGroup   `json:"groups"`
}

type DocumentFlow struct {
	deps   Deps
	logger *zap.Logger

	institutionID int64
	contentTypeID int64
	operatorID    string

	mu     sync.Mutex
	state  domain.DocumentState
	doc    *domain.ApprovalDocument
	editor *EditorContext

	// Редактируемый уровень: 0 — создаем новый
	editingLevelID int64
	levelForm      domain.LevelInput

	// Флаги "кнопка занята". Сбрасываются на каждом выходе,
	// чтобы отказ не оставил контрол заблокированным навсегда.
	savingDoc     bool
	savingLevel   bool
	savingGroup   bool
	deletingLevel bool

	pendingLevelDelete PendingDelete[int64]
}

// NewCreateFlow начинает сессию создания документа для пары
// (учреждение, content type). Состояние: UNCREATED.
func NewCreateFlow(deps Deps, logger *zap.Logger, operatorID string, institutionID, contentTypeID int64) *DocumentFlow {
	return &DocumentFlow{
		deps:          deps,
		logger:        logger.Named("document-flow"),
		operatorID:    operatorID,
		institutionID: institutionID,
		contentTypeID: contentTypeID,
		state:         domain.DocStateUncreated,
	}
}

// NewEditFlow начинает сессию редактирования существующего документа.
// Документ подгружается через LoadDocument.
func NewEditFlow(deps Deps, logger *zap.Logger, operatorID string, institutionID int64) *DocumentFlow {
	return &DocumentFlow{
		deps:          deps,
		logger:        logger.Named("document-flow"),
		operatorID:    operatorID,
		institutionID: institutionID,
		state:         domain.DocStateUncreated,
	}
}

// LoadDocument привязывает существующий документ к сессии редактирования.
// Невалидный ID должен отрендериться полноценным "not found", поэтому ошибка
// отдается как есть (хендлер различает 404 и остальное).
func (f *DocumentFlow) LoadDocument(ctx context.Context, documentID int64) error {
	doc, err := f.deps.API.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.doc = doc
	f.state = domain.DocStateCreated
	f.contentTypeID = doc.ContentTypeID
	f.mu.Unlock()
	return nil
}

// LoadContext параллельно тянет все справочники страницы. Любой отказ —
// страница рендерит состояние ошибки, а не молчаливо-частичные данные.
func (f *DocumentFlow) LoadContext(ctx context.Context) (*EditorContext, error) {
	var (
		ec   EditorContext
		wg   sync.WaitGroup
		errs = make([]error, 5)
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		ec.Models, errs[0] = f.deps.API.ListApprovableModels(ctx)
	}()
	go func() {
		defer wg.Done()
		ec.Actions, errs[1] = f.deps.API.ListActions(ctx)
	}()
	go func() {
		defer wg.Done()
		page, err := f.deps.API.ListUserProfiles(ctx, 1)
		if err != nil {
			errs[2] = err
			return
		}
		ec.Users = page.Results
	}()
	go func() {
		defer wg.Done()
		ec.Roles, errs[3] = f.deps.API.ListRoles(ctx, f.institutionID)
	}()
	go func() {
		defer wg.Done()
		ec.Groups, errs[4] = f.loadAllGroups(ctx)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			f.logger.Error("editor context load failed", zap.Error(err))
			return nil, fmt.Errorf("flow: load context: %w", err)
		}
	}

	f.mu.Lock()
	f.editor = &ec
	f.mu.Unlock()
	return &ec, nil
}

// loadAllGroups выгребает все страницы групп учреждения: селектору уровня
// нужен полный список, а не первая страница.
func (f *DocumentFlow) loadAllGroups(ctx context.Context) ([]domain.ApproverGroup, error) {
	all := make([]domain.ApproverGroup, 0)
	for page := 1; ; page++ {
		p, err := f.deps.API.ListGroups(ctx, f.institutionID, "", page)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		if p.Next == "" || len(p.Results) == 0 {
			break
		}
	}
	return all, nil
}

// CreateDocument — единственный переход UNCREATED → CREATED в сессии.
// Прекондиции: учреждение задано, выбран хотя бы один Action, документ еще
// не создавался. При нарушении — блокирующее сообщение и НИКАКОЙ сети.
func (f *DocumentFlow) CreateDocument(ctx context.Context, actionIDs []int64, description string) (*domain.ApprovalDocument, error) {
	in := domain.DocumentInput{
		InstitutionID: f.institutionID,
		ContentTypeID: f.contentTypeID,
		Description:   description,
		ActionIDs:     actionIDs,
	}
	if res := domain.ValidateDocument(in); !res.Valid() {
		f.deps.observeRejection("document")
		f.deps.record(ctx, audit.Event{
			OperatorID: f.operatorID, InstitutionID: f.institutionID,
			Entity: "document", Op: "create",
			Outcome: audit.OutcomeRejected, Payload: in,
		})
		return nil, res.Err()
	}

	f.mu.Lock()
	if f.state == domain.DocStateCreated {
		f.mu.Unlock()
		return nil, domain.ErrDocumentAlreadyCreated
	}
	if f.savingDoc {
		f.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	f.savingDoc = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.savingDoc = false
		f.mu.Unlock()
	}()

	started := time.Now()
	doc, err := f.deps.API.CreateDocument(ctx, in)

	f.deps.observeMutation("document", "create", outcomeOf(err))
	f.deps.record(ctx, audit.Event{
		OperatorID: f.operatorID, InstitutionID: f.institutionID,
		Entity: "document", Op: "create",
		EntityID: docID(doc), Outcome: outcomeOf(err), Payload: in,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.doc = doc
	f.state = domain.DocStateCreated // one-way: повторное создание заблокировано
	f.mu.Unlock()

	f.logger.Info("approval document created",
		zap.Int64("document_id", doc.ID),
		zap.Int64("institution_id", f.institutionID),
		zap.Int64("content_type_id", f.contentTypeID))
	return doc, nil
}

// SaveDocument обновляет верхний уровень документа (description, actions)
// независимо от управления уровнями.
func (f *DocumentFlow) SaveDocument(ctx context.Context, actionIDs []int64, description string) (*domain.ApprovalDocument, error) {
	f.mu.Lock()
	if f.doc == nil {
		f.mu.Unlock()
		return nil, domain.ErrDocumentNotCreated
	}
	docRef := f.doc.ID
	f.mu.Unlock()

	in := domain.DocumentInput{
		InstitutionID: f.institutionID,
		ContentTypeID: f.contentTypeID,
		Description:   description,
		ActionIDs:     actionIDs,
	}
	if res := domain.ValidateDocument(in); !res.Valid() {
		f.deps.observeRejection("document")
		return nil, res.Err()
	}

	f.mu.Lock()
	if f.savingDoc {
		f.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	f.savingDoc = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.savingDoc = false
		f.mu.Unlock()
	}()

	started := time.Now()
	updated, err := f.deps.API.UpdateDocument(ctx, docRef, in)

	f.deps.observeMutation("document", "update", outcomeOf(err))
	f.deps.record(ctx, audit.Event{
		OperatorID: f.operatorID, InstitutionID: f.institutionID,
		Entity: "document", Op: "update",
		EntityID: docRef, Outcome: outcomeOf(err), Detail: errDetail(err), Payload: in,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	// Ответ PATCH может не содержать уровней — не теряем их
	if len(updated.Levels) == 0 {
		updated.Levels = f.doc.Levels
	}
	f.doc = updated
	f.mu.Unlock()
	return updated, nil
}

// BeginLevelEdit пред-заполняет форму из существующего уровня, проецируя
// денормализованные *_detail обратно в списки ID. Сети нет; открытие и
// закрытие диалога без изменений не меняет ничего на сервере.
func (f *DocumentFlow) BeginLevelEdit(levelID int64) (domain.LevelInput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.doc == nil {
		return domain.LevelInput{}, domain.ErrDocumentNotCreated
	}
	lvl := f.doc.FindLevel(levelID)
	if lvl == nil {
		return domain.LevelInput{}, ErrLevelNotFound
	}

	f.editingLevelID = levelID
	f.levelForm = domain.ToLevelInput(*lvl)
	return f.levelForm, nil
}

// CancelLevelEdit закрывает диалог уровня, отбрасывая черновик.
func (f *DocumentFlow) CancelLevelEdit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editingLevelID = 0
	f.levelForm = domain.LevelInput{}
}

// SaveLevel — одна точка сохранения уровня: создание и обновление различаются
// только наличием editingLevel-ссылки и проходят через общий флаг savingLevel,
// так что UI не может устроить гонку дублей.
//
// Успех: полный re-fetch документа (серверные approvers_detail/overriders_detail)
// и сброс формы. Отказ: форма сохраняется, ошибка уходит наверх с деталью.
func (f *DocumentFlow) SaveLevel(ctx context.Context, in domain.LevelInput) (*domain.ApprovalDocument, error) {
	if res := domain.ValidateLevel(in); !res.Valid() {
		f.deps.observeRejection("level")
		f.deps.record(ctx, audit.Event{
			OperatorID: f.operatorID, InstitutionID: f.institutionID,
			Entity: "level", Op: "save",
			Outcome: audit.OutcomeRejected, Payload: in,
		})
		return nil, res.Err()
	}

	f.mu.Lock()
	if f.doc == nil {
		f.mu.Unlock()
		return nil, domain.ErrDocumentNotCreated
	}
	if f.savingLevel {
		f.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	f.savingLevel = true
	f.levelForm = in // отказ не должен потерять ввод
	editingID := f.editingLevelID
	docRef := f.doc.ID
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.savingLevel = false
		f.mu.Unlock()
	}()

	var (
		op      = "create"
		err     error
		started = time.Now()
	)
	if editingID != 0 {
		op = "update"
		_, err = f.deps.API.UpdateLevel(ctx, editingID, in)
	} else {
		_, err = f.deps.API.CreateLevel(ctx, docRef, in)
	}

	f.deps.observeMutation("level", op, outcomeOf(err))
	f.deps.record(ctx, audit.Event{
		OperatorID: f.operatorID, InstitutionID: f.institutionID,
		Entity: "level", Op: op,
		EntityID: editingID, Outcome: outcomeOf(err), Detail: errDetail(err), Payload: in,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	// Re-fetch: только сервер знает денормализованные detail-представления
	doc, err := f.deps.API.GetDocument(ctx, docRef)
	if err != nil {
		return nil, fmt.Errorf("flow: level saved but refresh failed: %w", err)
	}

	f.mu.Lock()
	f.doc = doc
	f.editingLevelID = 0
	f.levelForm = domain.LevelInput{}
	f.mu.Unlock()
	return doc, nil
}

// RequestLevelDelete только взводит подтверждение (фаза 1 из 2).
func (f *DocumentFlow) RequestLevelDelete(levelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.doc == nil {
		return domain.ErrDocumentNotCreated
	}
	if f.doc.FindLevel(levelID) == nil {
		return ErrLevelNotFound
	}
	f.pendingLevelDelete.Request(levelID)
	return nil
}

// CancelLevelDelete закрывает подтверждение; сети не было и не будет.
func (f *DocumentFlow) CancelLevelDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingLevelDelete.Cancel()
}

// ConfirmLevelDelete — фаза 2: только здесь происходит сетевой вызов.
func (f *DocumentFlow) ConfirmLevelDelete(ctx context.Context) (*domain.ApprovalDocument, error) {
	f.mu.Lock()
	levelID, ok := f.pendingLevelDelete.Confirm()
	if !ok {
		f.mu.Unlock()
		return nil, ErrNothingPending
	}
	if f.deletingLevel {
		f.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	f.deletingLevel = true
	docRef := f.doc.ID
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.deletingLevel = false
		f.mu.Unlock()
	}()

	started := time.Now()
	err := f.deps.API.DeleteLevel(ctx, levelID)

	f.deps.observeMutation("level", "delete", outcomeOf(err))
	f.deps.record(ctx, audit.Event{
		OperatorID: f.operatorID, InstitutionID: f.institutionID,
		Entity: "level", Op: "delete",
		EntityID: levelID, Outcome: outcomeOf(err), Detail: errDetail(err),
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	doc, err := f.deps.API.GetDocument(ctx, docRef)
	if err != nil {
		return nil, fmt.Errorf("flow: level deleted but refresh failed: %w", err)
	}

	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
	return doc, nil
}

// CreateGroupInline создает группу, не закрывая диалог уровня, и сразу
// добавляет её в список доступных групп — без перезагрузки страницы.
func (f *DocumentFlow) CreateGroupInline(ctx context.Context, in domain.GroupInput) (*domain.ApproverGroup, error) {
	in.InstitutionID = f.institutionID
	// Та же валидация, что и у отдельного менеджера групп — без дублей правил
	if res := domain.ValidateApproverGroup(in); !res.Valid() {
		f.deps.observeRejection("approver_group")
		return nil, res.Err()
	}

	f.mu.Lock()
	if f.savingGroup {
		f.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	f.savingGroup = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.savingGroup = false
		f.mu.Unlock()
	}()

	started := time.Now()
	g, err := f.deps.API.CreateGroup(ctx, in)

	f.deps.observeMutation("approver_group", "create", outcomeOf(err))
	f.deps.record(ctx, audit.Event{
		OperatorID: f.operatorID, InstitutionID: f.institutionID,
		Entity: "approver_group", Op: "create",
		EntityID: groupID(g), Outcome: outcomeOf(err), Detail: errDetail(err), Payload: in,
		DurationMs: time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.editor != nil {
		f.editor.Groups = append(f.editor.Groups, *g)
	}
	f.mu.Unlock()

	if f.deps.Notifier != nil {
		f.deps.Notifier.GroupsChanged(ctx, f.institutionID)
	}
	return g, nil
}

// --- Снимки состояния для рендера ---

func (f *DocumentFlow) State() domain.DocumentState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Document возвращает копию текущего документа (nil, если еще не создан).
func (f *DocumentFlow) Document() *domain.ApprovalDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc == nil {
		return nil
	}
	cp := *f.doc
	cp.Levels = append([]domain.ApprovalDocumentLevel(nil), f.doc.Levels...)
	return &cp
}

// Editor возвращает загруженный контекст страницы (nil до LoadContext).
func (f *DocumentFlow) Editor() *EditorContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editor
}

// PendingLevelDelete — состояние модалки подтверждения удаления.
func (f *DocumentFlow) PendingLevelDelete() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLevelDelete.Target()
}

func (f *DocumentFlow) InstitutionID() int64 { return f.institutionID }

func docID(d *domain.ApprovalDocument) int64 {
	if d == nil {
		return 0
	}
	return d.ID
}

func groupID(g *domain.ApproverGroup) int64 {
	if g == nil {
		return 0
	}
	return g.ID
}
