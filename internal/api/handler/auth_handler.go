package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hcserver/accounts/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login exchanges a username and password for a session token.
//
// Credentials are read from a JSON or form body, falling back to the
// username and password query parameters. Every failed attempt gets the same
// 401 whether the username or the password was wrong.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Username == "" {
		req.Username = c.QueryParam("username")
	}
	if req.Password == "" {
		req.Password = c.QueryParam("password")
	}

	// Missing fields fall through to the authenticator, which reports them as
	// invalid credentials like any other failed attempt.
	token, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, loginResponse{Token: string(token)})
}

// Logout revokes the session token used to authenticate the request.
//
// @Summary      Logout
// @Tags         auth
// @Security     SessionToken
// @Success      204
// @Failure      401  {object}  errorResponse
// @Router       /users/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	_, token, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	if err := h.authService.Revoke(c.Request().Context(), token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
