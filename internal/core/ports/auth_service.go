package ports

import (
	"context"

	"github.com/hcserver/accounts/internal/core/domain"
)

// CredentialVerifier confirms a username/secret pair against the user store.
type CredentialVerifier interface {
	// Verify returns the matching user and true when the secret is correct.
	// An unknown user and a wrong secret both yield (nil, false, nil); only
	// store failures produce an error.
	Verify(ctx context.Context, username, secret string) (*domain.User, bool, error)
}

// AuthService issues, resolves and revokes session tokens.
type AuthService interface {
	Login(ctx context.Context, username, secret string) (domain.Token, error)
	Resolve(ctx context.Context, rawToken string) (*domain.User, error)
	Revoke(ctx context.Context, rawToken string) error
	RevokeUser(ctx context.Context, username string) (int, error)
}
