package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/console/service"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra/auth"
)

// fakeAuditProvider запоминает фильтр последнего запроса к журналу.
type fakeAuditProvider struct {
	lastFilter domain.AuditFilter
}

func (p *fakeAuditProvider) FetchLogs(_ context.Context, f domain.AuditFilter) ([]audit.Event, error) {
	p.lastFilter = f
	return []audit.Event{}, nil
}

func (p *fakeAuditProvider) GetDashboard(_ context.Context) (*domain.ConsoleDashboard, error) {
	return &domain.ConsoleDashboard{}, nil
}

func TestGetLogsScopesInstitutionFromToken(t *testing.T) {
	provider := &fakeAuditProvider{}
	h := NewAuditHandler(service.NewAuditService(provider, nil))

	// institution_id в запросе подменен на чужое учреждение
	req := httptest.NewRequest(http.MethodGet, "/v1/audit?entity=level&institution_id=999&limit=10", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &domain.OperatorClaims{
		OperatorID:    "op-1",
		InstitutionID: 7,
		Scopes:        map[string]bool{"approvals.write": true},
	}))
	rec := httptest.NewRecorder()

	h.GetLogs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// Журнал отфильтрован по учреждению токена, параметр запроса игнорируется
	assert.Equal(t, int64(7), provider.lastFilter.InstitutionID)
	assert.Equal(t, "level", provider.lastFilter.Entity)
	assert.Equal(t, 10, provider.lastFilter.Limit)
}

func TestGetLogsWithoutClaims(t *testing.T) {
	provider := &fakeAuditProvider{}
	h := NewAuditHandler(service.NewAuditService(provider, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	rec := httptest.NewRecorder()

	h.GetLogs(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, provider.lastFilter)
}
