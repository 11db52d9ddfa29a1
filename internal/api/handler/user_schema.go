package handler

import (
	"time"

	"github.com/hcserver/accounts/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request types ---

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type createUserRequest struct {
	Username    string `json:"username"     validate:"required,max=64,printascii,excludesall=/?#%"`
	Password    string `json:"password"     validate:"required,min=1,max=72"`
	Email       string `json:"email"        validate:"omitempty,email,max=254"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

// updateUserRequest may carry a username, but it is never used: the account
// being updated is always the one the session token belongs to.
type updateUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"     validate:"omitempty,max=72"`
	Email       string `json:"email"        validate:"omitempty,email,max=254"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

// --- Response types ---

type loginResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

func toUserEnvelope(u *domain.User) userEnvelope {
	return userEnvelope{User: userResponse{
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt.UTC(),
		UpdatedAt:   u.UpdatedAt.UTC(),
	}}
}
