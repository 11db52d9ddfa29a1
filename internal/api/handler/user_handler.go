package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/core/ports"
)

// UserHandler handles HTTP requests for account operations.
type UserHandler struct {
	service ports.UserService
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Create handles POST /users. No session is required.
//
// @Summary      Create an account
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      createUserRequest  true  "Account details"
// @Success      201   {object}  userEnvelope
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /users [post]
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	user, err := h.service.Create(c.Request().Context(), ports.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Profile: domain.Profile{
			Email:       req.Email,
			DisplayName: req.DisplayName,
		},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toUserEnvelope(user))
}

// Get handles GET /users/:username.
//
// @Summary      Get an account by username
// @Tags         users
// @Produce      json
// @Security     SessionToken
// @Param        username  path      string  true  "Username"
// @Success      200       {object}  userEnvelope
// @Failure      401       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Router       /users/{username} [get]
func (h *UserHandler) Get(c echo.Context) error {
	if _, _, err := ctxIdentity(c); err != nil {
		return err
	}

	user, err := h.service.Get(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserEnvelope(user))
}

// Update handles PUT /users. The account updated is the session's own; a
// username in the body is ignored.
//
// @Summary      Update the caller's account
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        body  body      updateUserRequest  true  "Replacement profile"
// @Success      200   {object}  userEnvelope
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /users [put]
func (h *UserHandler) Update(c echo.Context) error {
	identity, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	user, err := h.service.Update(c.Request().Context(), identity, ports.UpdateUserInput{
		Password: req.Password,
		Profile: domain.Profile{
			Email:       req.Email,
			DisplayName: req.DisplayName,
		},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserEnvelope(user))
}

// Delete handles DELETE /users. The account removed is the session's own,
// and every session it holds is revoked with it.
//
// @Summary      Delete the caller's account
// @Tags         users
// @Security     SessionToken
// @Success      204
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /users [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	identity, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), identity); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
