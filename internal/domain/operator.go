package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type OperatorClaims struct {
	OperatorID    string          `json:"operator_id"`
	InstitutionID int64           `json:"institution_id"`
	Scopes        map[string]bool `json:"scopes"` // "admin": true или "approvals.write": true
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator — учетная запись администратора консоли.
// Хранится локально (Postgres консоли), в отличие от пользователей платформы.
type Operator struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Username      string          `json:"username"`
	PasswordHash  string          `json:"-"` // Никогда не отправляем на фронт
	InstitutionID int64           `json:"institution_id"`
	Scopes        map[string]bool `json:"scopes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
