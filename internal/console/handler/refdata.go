package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra/auth"
)

// RefdataProvider Описываем, что нам нужно от клиента платформы
type RefdataProvider interface {
	ListActions(ctx context.Context) ([]domain.Action, error)
	ListApprovableModels(ctx context.Context) ([]domain.ApprovableModel, error)
	ListRoles(ctx context.Context, institutionID int64) ([]domain.Role, error)
}

// CachedGroups — группы учреждения из L1-кэша консоли.
type CachedGroups interface {
	Get(ctx context.Context, institutionID int64) ([]domain.ApproverGroup, error)
}

// RefdataHandler проксирует справочники платформы: экшены, типы сущностей,
// роли и группы (последние — через кэш консоли, а не напрямую).
type RefdataHandler struct {
	provider RefdataProvider
	groups   CachedGroups
}

func NewRefdataHandler(provider RefdataProvider, groups CachedGroups) *RefdataHandler {
	return &RefdataHandler{provider: provider, groups: groups}
}

// Routes Маршруты для Chi
func (h *RefdataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/actions", h.Actions)
	r.Get("/models", h.Models)
	r.Get("/roles", h.Roles)
	r.Get("/groups", h.Groups)
	return r
}

func (h *RefdataHandler) Actions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.provider.ListActions(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (h *RefdataHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.provider.ListApprovableModels(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *RefdataHandler) Roles(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roles, err := h.provider.ListRoles(r.Context(), claims.InstitutionID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (h *RefdataHandler) Groups(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groups, err := h.groups.Get(r.Context(), claims.InstitutionID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
