package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hcserver/accounts/internal/api/metrics"
	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/core/ports"
)

// SessionRevoker is the slice of the authenticator the user service needs.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, username string) (int, error)
}

// UserService implements account management on top of the user store.
type UserService struct {
	repo     ports.UserRepository
	sessions SessionRevoker
	cost     int
	log      zerolog.Logger
	now      func() time.Time
}

// NewUserService returns a UserService. cost is the bcrypt cost used for new
// secrets; out-of-range values fall back to bcrypt.DefaultCost.
func NewUserService(repo ports.UserRepository, sessions SessionRevoker, cost int, log zerolog.Logger) *UserService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &UserService{repo: repo, sessions: sessions, cost: cost, log: log, now: time.Now}
}

// Create adds a new account. It returns domain.ErrUserExists when the
// username is taken; the store is left unchanged in that case.
func (s *UserService) Create(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	username := in.Username
	if strings.TrimSpace(username) != username || username == "" || in.Password == "" {
		// Login compares names verbatim, so surrounding whitespace would
		// register an account nobody can sign in to.
		return nil, domain.ErrInvalidUser
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	// Millisecond precision survives every backend unchanged, so the value
	// sessions are pinned to compares equal after a round trip.
	now := s.now().UTC().Truncate(time.Millisecond)
	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Email:        in.Profile.Email,
		DisplayName:  in.Profile.DisplayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	metrics.UsersCreatedTotal.Inc()
	s.log.Info().Str("username", username).Msg("user created")
	return user, nil
}

// Get returns the account for username or domain.ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, username string) (*domain.User, error) {
	if username == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindByUsername(ctx, username)
}

// Update replaces the profile of identity's own account. identity comes from
// the resolved session, never from the request payload.
func (s *UserService) Update(ctx context.Context, identity string, in ports.UpdateUserInput) (*domain.User, error) {
	user, err := s.repo.FindByUsername(ctx, identity)
	if err != nil {
		return nil, err
	}

	user.Email = in.Profile.Email
	user.DisplayName = in.Profile.DisplayName
	if in.Password != "" {
		hash, err := s.hash(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("username", identity).Msg("user updated")
	return user, nil
}

// Delete removes identity's own account and every session it holds.
func (s *UserService) Delete(ctx context.Context, identity string) error {
	if err := s.repo.Delete(ctx, identity); err != nil {
		return err
	}
	metrics.UsersDeletedTotal.Inc()

	if _, err := s.sessions.RevokeUser(ctx, identity); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.log.Info().Str("username", identity).Msg("user deleted")
	return nil
}

func (s *UserService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", domain.ErrInvalidUser
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
