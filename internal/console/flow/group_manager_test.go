package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

func newTestManager(gw *mockGateway, n GroupsNotifier) *GroupManager {
	return NewGroupManager(Deps{API: gw, Notifier: n}, zap.NewNop(), "op-1", 7)
}

func TestGroupManagerCreateRejectedLocally(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil)

	_, err := m.Create(context.Background(), domain.GroupInput{Name: "   "})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Result.Errors, "group name is required")
	assert.Contains(t, verr.Result.Errors, "at least one user or role is required")
	assert.Equal(t, 0, gw.totalCalls())
}

func TestGroupManagerCreateForcesInstitution(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil)

	// Учреждение из формы игнорируется: сессия привязана к одному учреждению
	g, err := m.Create(context.Background(), domain.GroupInput{
		InstitutionID: 999, Name: "finance", RoleIDs: []int64{4},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), g.InstitutionID)
}

func TestGroupManagerDeleteIsTwoPhase(t *testing.T) {
	gw := &mockGateway{}
	notifier := &mockNotifier{}
	m := newTestManager(gw, notifier)

	m.RequestDelete(10)
	target, armed := m.PendingDeleteTarget()
	assert.True(t, armed)
	assert.Equal(t, int64(10), target)
	assert.Equal(t, 0, gw.count("DeleteGroup"))

	m.CancelDelete()
	assert.ErrorIs(t, m.ConfirmDelete(context.Background()), ErrNothingPending)
	assert.Equal(t, 0, gw.count("DeleteGroup"))

	m.RequestDelete(10)
	require.NoError(t, m.ConfirmDelete(context.Background()))
	assert.Equal(t, 1, gw.count("DeleteGroup"))
	assert.Equal(t, int64(1), notifier.notified.Load())
}

func TestGroupManagerAuditCarriesDuration(t *testing.T) {
	rec := &recordingAudit{}
	gw := &mockGateway{
		createGroupFn: func(_ context.Context, in domain.GroupInput) (*domain.ApproverGroup, error) {
			time.Sleep(10 * time.Millisecond)
			return &domain.ApproverGroup{ID: 42, InstitutionID: in.InstitutionID, Name: in.Name}, nil
		},
	}
	m := NewGroupManager(Deps{API: gw, Audit: rec}, zap.NewNop(), "op-1", 7)

	_, err := m.Create(context.Background(), domain.GroupInput{Name: "finance", RoleIDs: []int64{4}})
	require.NoError(t, err)

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeSuccess, events[0].Outcome)
	assert.GreaterOrEqual(t, events[0].DurationMs, int64(10))
}

func TestGroupManagerRefreshKeepsSearchAndPage(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil)

	_, err := m.List(context.Background(), "fin", 2)
	require.NoError(t, err)

	_, err = m.Refresh(context.Background())
	require.NoError(t, err)

	m.mu.Lock()
	assert.Equal(t, "fin", m.search)
	assert.Equal(t, 2, m.page)
	m.mu.Unlock()
	assert.Equal(t, 2, gw.count("ListGroups"))
}
