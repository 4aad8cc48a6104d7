package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

// AuditRepo — собственная база консоли: журнал изменений конфигурации
// согласований. Данные платформы здесь НЕ хранятся, только кто/что/когда менял.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) *AuditRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице config_audit
	numFields := 12
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12)

		payload, _ := json.Marshal(e.Payload)

		vals = append(vals,
			e.ID, e.TraceID, e.OperatorID, e.InstitutionID,
			e.Entity, e.EntityID, e.Op, e.Outcome, e.Detail,
			payload, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO config_audit (id, trace_id, operator_id, institution_id, entity, entity_id, op, outcome, detail, payload, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchLogs читает журнал с фильтрацией. Пустые значения фильтра означают
// «без ограничения»; лимит по умолчанию 100, свежие записи первыми.
func (r *AuditRepo) FetchLogs(ctx context.Context, f domain.AuditFilter) ([]audit.Event, error) {
	query := `
		SELECT id, trace_id, operator_id, institution_id, entity, entity_id,
		       op, outcome, detail, payload, duration_ms, timestamp
		FROM config_audit
		WHERE ($1 = '' OR entity = $1)
		  AND ($2 = '' OR operator_id = $2)
		  AND ($3 = 0 OR institution_id = $3)
		ORDER BY timestamp DESC
		LIMIT $4`

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, query, f.Entity, f.OperatorID, f.InstitutionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e       audit.Event
			payload []byte
		)
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.OperatorID, &e.InstitutionID, &e.Entity, &e.EntityID,
			&e.Op, &e.Outcome, &e.Detail, &payload, &e.DurationMs, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			var raw json.RawMessage = payload
			e.Payload = raw
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// GetDashboard собирает сводку по журналу за последние 60 минут.
// Мы используем PERCENTILE_CONT для расчета честного P95 Latency.
func (r *AuditRepo) GetDashboard(ctx context.Context) (*domain.ConsoleDashboard, error) {
	d := &domain.ConsoleDashboard{
		Activity: domain.ConfigActivityStats{PerEntity: make(map[string]int64)},
	}

	// 1. Общий темп изменений, отказы и латентность
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'SUCCESS'),
			COUNT(*) FILTER (WHERE outcome = 'BACKEND_ERROR'),
			COUNT(*) FILTER (WHERE outcome = 'REJECTED'),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM config_audit
		WHERE timestamp > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.Activity.MutationsLastHour,
		&d.Incidents.BackendErrors,
		&d.Incidents.ValidationRejections,
		&d.Quality.P95MutationLatency,
	)
	if err != nil {
		return nil, err
	}

	// 2. Разбивка успешных мутаций по сущностям
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity, COUNT(*)
		FROM config_audit
		WHERE timestamp > NOW() - INTERVAL '60 minutes' AND outcome = 'SUCCESS'
		GROUP BY entity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entity string
			count  int64
		)
		if err := rows.Scan(&entity, &count); err != nil {
			return nil, err
		}
		d.Activity.PerEntity[entity] = count
	}
	return d, rows.Err()
}
