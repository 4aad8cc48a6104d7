package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

// AuditLogProvider описывает контракт для чтения журнала изменений.
// Мы используем структуру Event из пакета audit, чтобы сохранить единую модель данных.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, f domain.AuditFilter) ([]audit.Event, error)
	GetDashboard(ctx context.Context) (*domain.ConsoleDashboard, error)
}

// SessionCounter — количество живых сессий редактирования (flow.Registry).
type SessionCounter interface {
	Len() int
}

type AuditService struct {
	repo     AuditLogProvider
	sessions SessionCounter
}

func NewAuditService(repo AuditLogProvider, sessions SessionCounter) *AuditService {
	return &AuditService{
		repo:     repo,
		sessions: sessions,
	}
}

// FetchLogs запрашивает журнал с фильтрацией.
// Логика фильтрации (пустые значения или конкретные ID) инкапсулирована в репозитории.
func (s *AuditService) FetchLogs(ctx context.Context, f domain.AuditFilter) ([]audit.Event, error) {
	logs, err := s.repo.FetchLogs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}

// GetDashboard собирает сводку по журналу и дополняет её счетчиком живых сессий.
func (s *AuditService) GetDashboard(ctx context.Context) (*domain.ConsoleDashboard, error) {
	d, err := s.repo.GetDashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to build dashboard: %w", err)
	}
	if s.sessions != nil {
		d.Sessions.ActiveSessions = s.sessions.Len()
	}
	return d, nil
}
