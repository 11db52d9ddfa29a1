package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hcserver/accounts/internal/api/metrics"
	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/core/ports"
)

// maxTokenAttempts bounds how many fresh tokens Login draws when the store
// reports a collision with a live token.
const maxTokenAttempts = 5

// AuthService is the session authenticator: the single owner of the live
// session collection.
type AuthService struct {
	verifier ports.CredentialVerifier
	users    ports.UserRepository
	sessions ports.SessionStore
	audit    ports.AuditPublisher
	ttl      time.Duration
	log      zerolog.Logger

	newToken func() (domain.Token, error)
	now      func() time.Time
}

// NewAuthService wires an authenticator. A ttl of zero means sessions never
// expire and are only removed by explicit revocation. audit may be nil.
func NewAuthService(
	verifier ports.CredentialVerifier,
	users ports.UserRepository,
	sessions ports.SessionStore,
	audit ports.AuditPublisher,
	ttl time.Duration,
	log zerolog.Logger,
) *AuthService {
	if audit == nil {
		audit = nopPublisher{}
	}
	if ttl < 0 {
		ttl = 0
	}
	return &AuthService{
		verifier: verifier,
		users:    users,
		sessions: sessions,
		audit:    audit,
		ttl:      ttl,
		log:      log,
		newToken: domain.NewToken,
		now:      time.Now,
	}
}

// Login exchanges credentials for a new session token. Bad credentials yield
// domain.ErrInvalidCredentials and leave the session store untouched.
func (s *AuthService) Login(ctx context.Context, username, secret string) (domain.Token, error) {
	user, ok, err := s.verifier.Verify(ctx, username, secret)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
		return "", fmt.Errorf("login: %w", err)
	}
	if !ok {
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		s.publish(domain.AuditLoginFailed, username, "", 0)
		return "", domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := domain.Session{Username: user.Username, UserCreatedAt: user.CreatedAt, CreatedAt: now}
	if s.ttl > 0 {
		sess.ExpiresAt = now.Add(s.ttl)
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
			return "", fmt.Errorf("login: generate token: %w", err)
		}
		sess.Token = token

		err = s.sessions.Insert(ctx, sess)
		if err == nil {
			if err := s.confirm(ctx, sess); err != nil {
				return "", err
			}
			metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
			metrics.SessionsIssuedTotal.Inc()
			s.publish(domain.AuditLoginSucceeded, user.Username, token.Short(), 1)
			s.log.Debug().
				Str("username", user.Username).
				Str("token", token.Short()).
				Msg("session issued")
			return token, nil
		}
		if !errors.Is(err, domain.ErrTokenCollision) {
			metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
			return "", fmt.Errorf("login: store session: %w", err)
		}

		metrics.TokenCollisionsTotal.Inc()
		s.log.Warn().Int("attempt", attempt).Msg("generated token already live, retrying")
	}

	metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
	return "", fmt.Errorf("login: %w after %d attempts", domain.ErrTokenCollision, maxTokenAttempts)
}

// confirm re-reads the account after its session was stored. An account
// deleted, or deleted and re-created, while Login was running may have had its
// sessions revoked before this one existed, so the new session is dropped.
func (s *AuthService) confirm(ctx context.Context, sess domain.Session) error {
	user, err := s.users.FindByUsername(ctx, sess.Username)
	switch {
	case err == nil && sess.BelongsTo(user):
		return nil
	case err == nil || errors.Is(err, domain.ErrUserNotFound):
		s.drop(ctx, sess.Token, "orphaned")
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		s.publish(domain.AuditLoginFailed, sess.Username, "", 0)
		return domain.ErrInvalidCredentials
	default:
		s.drop(ctx, sess.Token, "orphaned")
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("login: confirm account: %w", err)
	}
}

// Resolve maps a presented token to the current user record. The record is
// re-read from the user store on every call so profile edits are visible
// immediately. Missing, malformed, expired and orphaned tokens, including
// tokens issued to an earlier account of the same name, all yield
// domain.ErrUnauthorized.
func (s *AuthService) Resolve(ctx context.Context, rawToken string) (*domain.User, error) {
	token, err := domain.ParseToken(rawToken)
	if err != nil {
		metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, domain.ErrUnauthorized
	}

	sess, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if !ok {
		metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, domain.ErrUnauthorized
	}

	if sess.Expired(s.now()) {
		s.drop(ctx, token, "expired")
		metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.FindByUsername(ctx, sess.Username)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if err != nil || !sess.BelongsTo(user) {
		// The account went away, or was replaced, without its sessions.
		s.drop(ctx, token, "orphaned")
		metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, domain.ErrUnauthorized
	}

	metrics.TokenResolutionsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return user, nil
}

// Revoke ends the session for rawToken. It is idempotent: revoking an absent
// or malformed token succeeds without doing anything.
func (s *AuthService) Revoke(ctx context.Context, rawToken string) error {
	token, err := domain.ParseToken(rawToken)
	if err != nil {
		return nil
	}

	sess, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	removed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if removed {
		metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
		username := ""
		if ok {
			username = sess.Username
		}
		s.publish(domain.AuditLogout, username, token.Short(), 1)
	}
	return nil
}

// RevokeUser ends every live session of username and returns how many were
// removed.
func (s *AuthService) RevokeUser(ctx context.Context, username string) (int, error) {
	n, err := s.sessions.DeleteUser(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	if n > 0 {
		metrics.SessionsRevokedTotal.WithLabelValues("account_deleted").Add(float64(n))
	}
	s.publish(domain.AuditSessionsPurged, username, "", n)
	s.log.Info().Str("username", username).Int("sessions", n).Msg("user sessions revoked")
	return n, nil
}

// drop removes a session found stale during resolution. Failures are logged
// only; the caller is already answering Unauthorized.
func (s *AuthService) drop(ctx context.Context, token domain.Token, reason string) {
	removed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Str("token", token.Short()).Str("reason", reason).Msg("failed to drop stale session")
		return
	}
	if removed {
		metrics.SessionsRevokedTotal.WithLabelValues(reason).Inc()
	}
}

func (s *AuthService) publish(kind domain.AuditKind, username, tokenPrefix string, count int) {
	s.audit.Publish(domain.AuditEvent{
		Kind:        kind,
		Username:    username,
		TokenPrefix: tokenPrefix,
		Count:       count,
		At:          s.now().UTC(),
	})
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.AuditEvent) {}
