// Package auth issues and verifies the bearer tokens used by the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

type Claims struct {
	UserID     int64  `json:"id"`
	EmployeeID string `json:"employeeId"`
	jwt.RegisteredClaims
}

// Identity is the caller a verified token resolves to.
type Identity struct {
	UserID     int64
	EmployeeID string
	TokenID    string
	ExpiresAt  time.Time
}

type TokenManager struct {
	secret  []byte
	ttl     time.Duration
	revoker Revoker
	now     func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration, revoker Revoker) *TokenManager {
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, revoker: revoker, now: time.Now}
}

// Issue signs an HS256 token for u that expires after the manager's TTL.
func (m *TokenManager) Issue(u *models.User) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID:     u.ID,
		EmployeeID: u.EmployeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and revocation. Every rejection is a
// Forbidden error.
func (m *TokenManager) Verify(ctx context.Context, raw string) (*Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Forbidden("Token expired")
		}
		return nil, errs.Forbidden("Invalid token")
	}
	if claims.UserID <= 0 || claims.ID == "" {
		return nil, errs.Forbidden("Invalid token")
	}

	revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, errs.Unavailable("token check failed", err)
	}
	if revoked {
		return nil, errs.Forbidden("Token revoked")
	}

	return &Identity{
		UserID:     claims.UserID,
		EmployeeID: claims.EmployeeID,
		TokenID:    claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Revoke makes id's token unusable until it would have expired anyway.
func (m *TokenManager) Revoke(ctx context.Context, id *Identity) error {
	return m.revoker.Revoke(ctx, id.TokenID, id.ExpiresAt)
}
