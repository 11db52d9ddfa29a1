package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/core/ports"
)

// Context keys set by Session for downstream handlers.
const (
	ContextUser     = "user"
	ContextUsername = "username"
	ContextToken    = "token"
)

// TokenQueryParam is the query parameter older clients use to pass the
// session token.
const TokenQueryParam = "tokenId"

// Session resolves the presented session token before the handler runs and
// injects the caller's identity into the context. Requests without a live
// token never reach next.
func Session(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := tokenFromRequest(c)
			if err != nil {
				return err
			}

			user, err := auth.Resolve(c.Request().Context(), raw)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
				}
				return err
			}

			c.Set(ContextUser, user)
			c.Set(ContextUsername, user.Username)
			c.Set(ContextToken, raw)

			return next(c)
		}
	}
}

// tokenFromRequest reads the token from the Authorization header, falling
// back to the tokenId query parameter.
func tokenFromRequest(c echo.Context) (string, error) {
	if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if raw := c.QueryParam(TokenQueryParam); raw != "" {
		return raw, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
}
