package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/core/ports"
)

// CredentialVerifier checks a username/secret pair against the user store.
type CredentialVerifier struct {
	users ports.UserRepository
	cost  int

	// dummyHash is compared against when the user is unknown. It is nil only
	// if hashing failed at construction.
	dummyHash []byte
}

// NewCredentialVerifier returns a verifier backed by users. cost must match
// the bcrypt cost used when hashing passwords; out-of-range values fall back
// to bcrypt.DefaultCost.
func NewCredentialVerifier(users ports.UserRepository, cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	v := &CredentialVerifier{users: users, cost: cost}
	if h, err := bcrypt.GenerateFromPassword([]byte(dummySecret), cost); err == nil {
		v.dummyHash = h
	}
	return v
}

const dummySecret = "placeholder-secret"

// Verify implements ports.CredentialVerifier.
func (v *CredentialVerifier) Verify(ctx context.Context, username, secret string) (*domain.User, bool, error) {
	if username == "" || secret == "" {
		return nil, false, nil
	}

	user, err := v.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Burn the same bcrypt work as a real comparison so response
			// time does not reveal whether the account exists.
			v.burn(secret)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("verify credentials: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)) != nil {
		return nil, false, nil
	}
	return user, true, nil
}

// burn spends the work of one comparison at v.cost. Without a dummy hash it
// hashes the secret instead, which costs the same.
func (v *CredentialVerifier) burn(secret string) {
	if v.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(secret))
		return
	}
	_, _ = bcrypt.GenerateFromPassword([]byte(secret), v.cost)
}
