package ports

import (
	"context"

	"github.com/hcserver/accounts/internal/core/domain"
)

// SessionStore holds the live sessions. Only the authenticator writes to it.
type SessionStore interface {
	// Insert records s unless s.Token is already live, in which case it
	// returns domain.ErrTokenCollision and leaves the existing entry alone.
	Insert(ctx context.Context, s domain.Session) error
	// Get reports whether token is live and, if so, its session.
	Get(ctx context.Context, token domain.Token) (domain.Session, bool, error)
	// Delete removes token. Deleting an absent token is not an error; the
	// result reports whether anything was removed.
	Delete(ctx context.Context, token domain.Token) (bool, error)
	// DeleteUser removes every live session of username and returns how many
	// were removed.
	DeleteUser(ctx context.Context, username string) (int, error)
}
