package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

const secret = "0123456789abcdef0123456789abcdef"

var nurse = &models.User{ID: 7, EmployeeID: "N007"}

func TestIssueAndVerify(t *testing.T) {
	m := NewTokenManager(secret, 24*time.Hour, nil)
	token, err := m.Issue(nurse)
	if err != nil {
		t.Fatal(err)
	}

	id, err := m.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != 7 || id.EmployeeID != "N007" || id.TokenID == "" {
		t.Errorf("identity = %+v", id)
	}
	if d := time.Until(id.ExpiresAt); d < 23*time.Hour || d > 24*time.Hour {
		t.Errorf("expiry in %v, want about 24h", d)
	}
}

func TestVerifyRejects(t *testing.T) {
	m := NewTokenManager(secret, time.Hour, nil)

	expired := NewTokenManager(secret, time.Hour, nil)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Issue(nurse)

	other, _ := NewTokenManager(strings.Repeat("x", 32), time.Hour, nil).Issue(nurse)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{
		ID: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"expired":      old,
		"wrong secret": other,
		"alg none":     unsigned,
		"garbage":      "not.a.token",
	} {
		if _, err := m.Verify(context.Background(), token); errs.KindOf(err) != errs.KindForbidden {
			t.Errorf("%s: expected forbidden, got %v", name, err)
		}
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	m := NewTokenManager(secret, time.Hour, NewMemoryRevoker())
	token, _ := m.Issue(nurse)
	ctx := context.Background()

	id, err := m.Verify(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Revoke(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Verify(ctx, token); errs.KindOf(err) != errs.KindForbidden {
		t.Errorf("revoked token accepted: %v", err)
	}
}

func TestMemoryRevokerForgetsExpired(t *testing.T) {
	r := NewMemoryRevoker()
	ctx := context.Background()
	_ = r.Revoke(ctx, "a", time.Now().Add(-time.Second))
	if revoked, _ := r.IsRevoked(ctx, "a"); revoked {
		t.Error("already-expired token should not be stored")
	}
	_ = r.Revoke(ctx, "b", time.Now().Add(time.Hour))
	if revoked, _ := r.IsRevoked(ctx, "b"); !revoked {
		t.Error("token b should be revoked")
	}
}

func TestRedisRevoker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	r := NewRedisRevoker(rdb)
	ctx := context.Background()
	tokenID := "test-" + time.Now().Format("150405.000000")
	if err := r.Revoke(ctx, tokenID, time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if revoked, err := r.IsRevoked(ctx, tokenID); err != nil || !revoked {
		t.Errorf("IsRevoked = %v, %v", revoked, err)
	}
}

func TestMiddleware(t *testing.T) {
	m := NewTokenManager(secret, time.Hour, nil)
	token, _ := m.Issue(nurse)

	e := echo.New()
	handler := Middleware(m)(func(c echo.Context) error {
		id := FromContext(c)
		if id == nil || id.UserID != 7 {
			t.Errorf("identity = %+v", id)
		}
		return c.NoContent(http.StatusOK)
	})

	tests := []struct {
		header string
		kind   errs.Kind
		ok     bool
	}{
		{"", errs.KindAuth, false},
		{"Token " + token, errs.KindAuth, false},
		{"Bearer broken", errs.KindForbidden, false},
		{"Bearer " + token, 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
		if tt.header != "" {
			req.Header.Set(echo.HeaderAuthorization, tt.header)
		}
		rec := httptest.NewRecorder()
		err := handler(e.NewContext(req, rec))

		if tt.ok {
			if err != nil || rec.Code != http.StatusOK {
				t.Errorf("%q: err=%v code=%d", tt.header, err, rec.Code)
			}
			continue
		}
		if errs.KindOf(err) != tt.kind {
			t.Errorf("%q: kind = %v, want %v (%v)", tt.header, errs.KindOf(err), tt.kind, err)
		}
	}
}
