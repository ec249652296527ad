package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"nurse-handover/backend/internal/errs"
)

const identityKey = "auth.identity"

// Middleware rejects requests without a bearer token (401) or with one that
// fails verification (403), and stores the caller's Identity otherwise.
func Middleware(m *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if raw == "" {
				return errs.Auth("Access token required")
			}

			id, err := m.Verify(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// FromContext returns the identity set by Middleware, or nil on routes
// that do not use it.
func FromContext(c echo.Context) *Identity {
	id, _ := c.Get(identityKey).(*Identity)
	return id
}
