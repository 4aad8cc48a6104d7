package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/taskflow-approval-console/internal/console/service"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra/auth"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает журнал изменений конфигурации с поддержкой фильтрации
// GET /v1/audit?entity=...&operator_id=...&limit=N
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Извлекаем фильтры из Query-параметров; учреждение — только из токена,
	// журнал чужого учреждения недоступен независимо от параметров запроса
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	f := domain.AuditFilter{
		Entity:        q.Get("entity"),
		OperatorID:    q.Get("operator_id"),
		InstitutionID: claims.InstitutionID,
		Limit:         limit,
	}

	logs, err := h.service.FetchLogs(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetDashboard возвращает сводку активности конфигурирования за последний час.
func (h *AuditHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboard(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
