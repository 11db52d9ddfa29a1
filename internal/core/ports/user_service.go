package ports

import (
	"context"

	"github.com/hcserver/accounts/internal/core/domain"
)

// CreateUserInput carries the data for a new account.
type CreateUserInput struct {
	Username string
	Password string
	Profile  domain.Profile
}

// UpdateUserInput carries the replacement profile for the caller's own
// account. An empty Password keeps the current secret.
type UpdateUserInput struct {
	Password string
	Profile  domain.Profile
}

// UserService defines account use cases. Update and Delete always act on the
// identity passed in, which the transport takes from the resolved session.
type UserService interface {
	Create(ctx context.Context, in CreateUserInput) (*domain.User, error)
	Get(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, identity string, in UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, identity string) error
}
