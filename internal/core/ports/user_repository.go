package ports

import (
	"context"

	"github.com/hcserver/accounts/internal/core/domain"
)

// UserRepository is the user store the core calls into.
type UserRepository interface {
	// FindByUsername returns domain.ErrUserNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create returns domain.ErrUserExists when the username is taken.
	Create(ctx context.Context, user *domain.User) error
	// Update replaces the stored record for user.Username. It returns
	// domain.ErrUserNotFound when the user does not exist.
	Update(ctx context.Context, user *domain.User) error
	// Delete returns domain.ErrUserNotFound when the user does not exist.
	Delete(ctx context.Context, username string) error
}
