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

// GroupHandler — HTTP-обертка над сессиями страницы групп согласующих.
type GroupHandler struct {
	registry *flow.Registry
	deps     flow.Deps
	logger   *zap.Logger
}

func NewGroupHandler(registry *flow.Registry, deps flow.Deps, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		registry: registry,
		deps:     deps,
		logger:   logger.Named("group-handler"),
	}
}

// Routes Маршруты для Chi
func (h *GroupHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sessions", h.OpenSession)

	r.Route("/sessions/{session}", func(r chi.Router) {
		r.Get("/", h.List)
		r.Delete("/", h.Close)
		r.Post("/", h.Create)
		r.Put("/{groupID}", h.Update)
		r.Post("/{groupID}/delete", h.RequestDelete)
		r.Post("/delete/confirm", h.ConfirmDelete)
		r.Post("/delete/cancel", h.CancelDelete)
	})
	return r
}

func (h *GroupHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	m := flow.NewGroupManager(h.deps, h.logger, claims.OperatorID, claims.InstitutionID)
	key := h.registry.PutGroupManager(m)

	writeJSON(w, http.StatusCreated, map[string]string{"session": key})
}

func (h *GroupHandler) managerFromRequest(w http.ResponseWriter, r *http.Request) (*flow.GroupManager, bool) {
	m, err := h.registry.GroupManager(chi.URLParam(r, "session"))
	if err != nil {
		writeFlowError(w, err)
		return nil, false
	}
	return m, true
}

// List возвращает страницу групп: ?search=...&page=N
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	m, ok := h.managerFromRequest(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	listing, err := m.List(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, ok := h.managerFromRequest(w, r)
	if !ok {
		return
	}

	var in domain.GroupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	g, err := m.Create(r.Context(), in)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, ok := h.managerFromRequest(w, r)
	if !ok {
		return
	}

	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	var in domain.GroupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	g, err := m.Update(r.Context(), groupID, in)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// RequestDelete взводит подтверждение и возвращает предупреждение для модалки.
func (h *GroupHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.managerFromRequest(w, r)
	if !ok {
		return
	}

	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	m.RequestDelete(groupID)
	writeJSON(w, http.StatusAccepted, map[string]string{"warning": flow.GroupDeleteWarning})
}

func (h *GroupHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.managerFromRequest(w, r)
	if !ok {
		return
	}

	if err := m.ConfirmDelete(r.Context()); err != nil {
		writeFlowError(w, err)
		return
	}

	// Возвращаем пользователя на ту же страницу списка
	listing, err := m.Refresh(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *GroupHandler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.managerFromRequest(w, r)
	if !ok {
		return
	}
	m.CancelDelete()
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.registry.Drop(chi.URLParam(r, "session"))
	w.WriteHeader(http.StatusNoContent)
}
