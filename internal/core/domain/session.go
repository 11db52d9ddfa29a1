package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// secret so callers cannot probe for existing accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for a token that is missing, malformed or
	// not live.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenCollision is returned by a SessionStore when the token being
	// inserted is already live.
	ErrTokenCollision = errors.New("session token already in use")
)

// Token is an opaque session identifier handed to clients after login.
//
// Tokens are random (version 4) UUIDs in canonical 36-character form: 122 bits
// drawn from crypto/rand. Clients must treat them as opaque strings.
type Token string

// NewToken draws a fresh random token.
func NewToken() (Token, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return Token(id.String()), nil
}

// ParseToken validates a token received from a client and returns it in
// canonical form. Anything that is not a random UUID is ErrUnauthorized.
func ParseToken(raw string) (Token, error) {
	if raw == "" {
		return "", ErrUnauthorized
	}
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return "", ErrUnauthorized
	}
	return Token(id.String()), nil
}

// Short returns a prefix of the token that is safe to log.
func (t Token) Short() string {
	if len(t) <= 8 {
		return string(t)
	}
	return string(t[:8])
}

// Session binds a live token to the username it authenticates.
//
// UserCreatedAt pins the session to one incarnation of the account: a user
// deleted and registered again under the same name has a different creation
// time, so sessions issued to the old account never open the new one.
type Session struct {
	Token         Token     `json:"token"`
	Username      string    `json:"username"`
	UserCreatedAt time.Time `json:"user_created_at"`
	CreatedAt     time.Time `json:"created_at"`
	// ExpiresAt is zero for sessions that never expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// BelongsTo reports whether the session was issued to this incarnation of u.
func (s Session) BelongsTo(u *User) bool {
	return u != nil && u.Username == s.Username && u.CreatedAt.Equal(s.UserCreatedAt)
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
