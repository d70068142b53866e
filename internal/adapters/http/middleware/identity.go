package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/infrastructure/auth"
)

const (
	HeaderUserID = "X-User-Id"
	identityKey  = "identity"
	// DevUserID identifies the anonymous caller when AUTH_MODE=none.
	DevUserID = "local-admin"
)

type IdentityResolver interface {
	IdentityFor(ctx context.Context, userID string) (domain.Identity, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, authorization string) (auth.Principal, error)
}

// BearerIdentity verifies the Authorization header and loads the permission
// snapshot of the token subject. It is the cognito mode authenticator.
func BearerIdentity(verifier TokenVerifier, resolver IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			principal, err := verifier.Verify(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
			if errors.Is(err, auth.ErrMissingToken) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing authorization token"})
			}
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			identity, ok := resolve(c, resolver, principal.UserID)
			if !ok {
				return nil
			}
			if identity.Email == "" {
				identity.Email = principal.Email
			}
			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// IdentityMiddleware loads the caller's permission snapshot unless an
// authenticator already did. Outside cognito mode the user id comes from the
// X-User-Id header; without it, mode none acts as a server admin.
func IdentityMiddleware(mode Mode, resolver IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := IdentityFrom(c); ok {
				return next(c)
			}
			var userID string
			if mode != ModeCognito {
				userID = strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			}
			if userID == "" {
				if mode != ModeNone {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing caller identity"})
				}
				c.Set(identityKey, devIdentity())
				return next(c)
			}

			identity, ok := resolve(c, resolver, userID)
			if !ok {
				return nil
			}
			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// resolve writes the error response itself and reports false on failure.
func resolve(c echo.Context, resolver IdentityResolver, userID string) (domain.Identity, bool) {
	identity, err := resolver.IdentityFor(c.Request().Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{"error": "unknown user"})
		return domain.Identity{}, false
	}
	if err != nil {
		_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "identity unavailable"})
		return domain.Identity{}, false
	}
	return identity, true
}

func devIdentity() domain.Identity {
	return domain.Identity{
		UserID:      DevUserID,
		Permissions: []domain.Permission{{Scope: domain.ScopeServer, Type: domain.PermissionAdmin}},
	}
}

func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	identity, ok := c.Get(identityKey).(domain.Identity)
	return identity, ok
}

// WithIdentity stores identity on c. Handlers tests use it to skip resolution.
func WithIdentity(c echo.Context, identity domain.Identity) {
	c.Set(identityKey, identity)
}
