package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/console/flow"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra/auth"
)

// FlowHandler — HTTP-обертка над сессиями сборки документа согласования.
// Все состояние (форма уровня, pending delete, флаги сохранения) живет
// в flow.Registry между запросами; фронт только дергает переходы.
type FlowHandler struct {
	registry *flow.Registry
	deps     flow.Deps
	logger   *zap.Logger
}

func NewFlowHandler(registry *flow.Registry, deps flow.Deps, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{
		registry: registry,
		deps:     deps,
		logger:   logger.Named("flow-handler"),
	}
}

// Routes Маршруты для Chi
func (h *FlowHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/documents", h.StartCreate)                 // новая сессия создания
	r.Post("/documents/{documentID}/edit", h.StartEdit) // сессия редактирования

	r.Route("/{session}", func(r chi.Router) {
		r.Get("/", h.Snapshot)
		r.Delete("/", h.Close)
		r.Get("/context", h.Context)

		r.Post("/document", h.CreateDocument)
		r.Put("/document", h.SaveDocument)

		r.Post("/levels", h.SaveLevel)
		r.Post("/levels/{levelID}/edit", h.BeginLevelEdit)
		r.Post("/levels/edit/cancel", h.CancelLevelEdit)
		r.Post("/levels/{levelID}/delete", h.RequestLevelDelete)
		r.Post("/levels/delete/confirm", h.ConfirmLevelDelete)
		r.Post("/levels/delete/cancel", h.CancelLevelDelete)

		r.Post("/groups", h.CreateGroupInline)
	})
	return r
}

type startCreateRequest struct {
	ContentTypeID int64 `json:"content_type"`
}

type sessionResponse struct {
	Session string               `json:"session"`
	State   domain.DocumentState `json:"state"`
}

func (h *FlowHandler) StartCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req startCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentTypeID == 0 {
		http.Error(w, "content_type is required", http.StatusBadRequest)
		return
	}

	f := flow.NewCreateFlow(h.deps, h.logger, claims.OperatorID, claims.InstitutionID, req.ContentTypeID)
	key := h.registry.PutDocumentFlow(f)

	writeJSON(w, http.StatusCreated, sessionResponse{Session: key, State: f.State()})
}

func (h *FlowHandler) StartEdit(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	documentID, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}

	f := flow.NewEditFlow(h.deps, h.logger, claims.OperatorID, claims.InstitutionID)
	if err := f.LoadDocument(r.Context(), documentID); err != nil {
		writeFlowError(w, err)
		return
	}
	key := h.registry.PutDocumentFlow(f)

	writeJSON(w, http.StatusCreated, sessionResponse{Session: key, State: f.State()})
}

// flowFromRequest достает сессию по ключу из URL.
func (h *FlowHandler) flowFromRequest(w http.ResponseWriter, r *http.Request) (*flow.DocumentFlow, bool) {
	f, err := h.registry.DocumentFlow(chi.URLParam(r, "session"))
	if err != nil {
		writeFlowError(w, err)
		return nil, false
	}
	return f, true
}

type flowSnapshot struct {
	State              domain.DocumentState     `json:"state"`
	Document           *domain.ApprovalDocument `json:"document,omitempty"`
	PendingLevelDelete *int64                   `json:"pending_level_delete,omitempty"`
}

func (h *FlowHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	snap := flowSnapshot{State: f.State(), Document: f.Document()}
	if target, armed := f.PendingLevelDelete(); armed {
		snap.PendingLevelDelete = &target
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *FlowHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.registry.Drop(chi.URLParam(r, "session"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *FlowHandler) Context(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	ec, err := f.LoadContext(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ec)
}

type documentRequest struct {
	ActionIDs   []int64 `json:"actions"`
	Description string  `json:"description"`
}

func (h *FlowHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	doc, err := f.CreateDocument(r.Context(), req.ActionIDs, req.Description)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *FlowHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	doc, err := f.SaveDocument(r.Context(), req.ActionIDs, req.Description)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *FlowHandler) SaveLevel(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	var in domain.LevelInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	doc, err := f.SaveLevel(r.Context(), in)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *FlowHandler) BeginLevelEdit(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	levelID, err := strconv.ParseInt(chi.URLParam(r, "levelID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid level id", http.StatusBadRequest)
		return
	}

	form, err := f.BeginLevelEdit(levelID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FlowHandler) CancelLevelEdit(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}
	f.CancelLevelEdit()
	w.WriteHeader(http.StatusNoContent)
}

func (h *FlowHandler) RequestLevelDelete(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	levelID, err := strconv.ParseInt(chi.URLParam(r, "levelID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid level id", http.StatusBadRequest)
		return
	}

	if err := f.RequestLevelDelete(levelID); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *FlowHandler) ConfirmLevelDelete(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	doc, err := f.ConfirmLevelDelete(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *FlowHandler) CancelLevelDelete(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}
	f.CancelLevelDelete()
	w.WriteHeader(http.StatusNoContent)
}

func (h *FlowHandler) CreateGroupInline(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flowFromRequest(w, r)
	if !ok {
		return
	}

	var in domain.GroupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	g, err := f.CreateGroupInline(r.Context(), in)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}
