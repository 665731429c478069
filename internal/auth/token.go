package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// Claims carried by a member access token.
type Claims struct {
	MemberID string `json:"member_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and validates member access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager instantiates a token manager.
func NewManager(secret string, ttlMinutes int) *Manager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    time.Duration(ttlMinutes) * time.Minute,
	}
}

// Generate signs a token for the member.
func (m *Manager) Generate(member *domain.Member) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		MemberID: member.ID,
		Role:     string(member.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   member.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates the token and returns its claims.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.NewUnauthorized("invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, apperrors.NewUnauthorized("invalid token claims")
	}
	return claims, nil
}
