package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

type OperatorProvider interface {
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
	TouchLastLogin(ctx context.Context, operatorID string) error
}

type AuthService struct {
	repo       OperatorProvider
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewAuthService(repo OperatorProvider, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (Источник правды — Postgres консоли)
	op, err := s.repo.GetByUsername(ctx, username)
	if err != nil || op == nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims: учреждение и права оператора из БД
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.OperatorClaims{
		OperatorID:    op.ID,
		InstitutionID: op.InstitutionID,
		Scopes:        op.Scopes, // Напр. map[string]bool{"approvals.write": true}
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "taskflow-approval-console",
			Subject:   op.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	// Отметка входа не критична для выдачи токена
	_ = s.repo.TouchLastLogin(ctx, op.ID)

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
