package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hcserver/accounts/internal/api/middleware"
)

// ctxIdentity extracts the identity injected by the Session middleware and
// fails fast when it is absent, which means the route was registered without
// the middleware.
func ctxIdentity(c echo.Context) (username, token string, err error) {
	username, _ = c.Get(middleware.ContextUsername).(string)
	token, _ = c.Get(middleware.ContextToken).(string)
	if username == "" || token == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return username, token, nil
}
