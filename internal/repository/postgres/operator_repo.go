package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

// OperatorRepo — учетные записи администраторов консоли (локальный Postgres).
type OperatorRepo struct {
	pool *pgxpool.Pool
}

func NewOperatorRepo(pool *pgxpool.Pool) *OperatorRepo {
	return &OperatorRepo{pool: pool}
}

func (r *OperatorRepo) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	query := `
		SELECT id, email, username, password_hash, institution_id, scopes, created_at, updated_at
		FROM operators WHERE username = $1`

	op := &domain.Operator{}
	var scopes []byte
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&op.ID, &op.Email, &op.Username, &op.PasswordHash, &op.InstitutionID,
		&scopes, &op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &op.Scopes); err != nil {
			return nil, fmt.Errorf("postgres: malformed scopes for operator %s: %w", op.ID, err)
		}
	}
	return op, nil
}

// TouchLastLogin отмечает успешный вход (для аудита доступа).
func (r *OperatorRepo) TouchLastLogin(ctx context.Context, operatorID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE operators SET updated_at = NOW() WHERE id = $1`, operatorID)
	return err
}
