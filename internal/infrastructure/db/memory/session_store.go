// Package memory provides an in-process session store for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hcserver/accounts/internal/core/domain"
)

// SessionStore keeps live sessions in a map guarded by a RWMutex. Writers
// take the exclusive lock; lookups share the read lock.
type SessionStore struct {
	mu     sync.RWMutex
	byTok  map[domain.Token]domain.Session
	byUser map[string]map[domain.Token]struct{}
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byTok:  make(map[domain.Token]domain.Session),
		byUser: make(map[string]map[domain.Token]struct{}),
	}
}

// Insert implements ports.SessionStore.
func (s *SessionStore) Insert(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTok[sess.Token]; exists {
		return domain.ErrTokenCollision
	}
	s.byTok[sess.Token] = sess

	toks, ok := s.byUser[sess.Username]
	if !ok {
		toks = make(map[domain.Token]struct{})
		s.byUser[sess.Username] = toks
	}
	toks[sess.Token] = struct{}{}
	return nil
}

// Get implements ports.SessionStore.
func (s *SessionStore) Get(_ context.Context, token domain.Token) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byTok[token]
	return sess, ok, nil
}

// Delete implements ports.SessionStore.
func (s *SessionStore) Delete(_ context.Context, token domain.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(token), nil
}

// DeleteUser implements ports.SessionStore.
func (s *SessionStore) DeleteUser(_ context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	toks := s.byUser[username]
	for tok := range toks {
		delete(s.byTok, tok)
	}
	delete(s.byUser, username)
	return len(toks), nil
}

// Len returns the number of sessions currently held, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byTok)
}

// PurgeExpired removes every session that has expired at now and returns how
// many were removed.
func (s *SessionStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tok, sess := range s.byTok {
		if sess.Expired(now) {
			s.deleteLocked(tok)
			n++
		}
	}
	return n
}

// RunJanitor calls PurgeExpired every interval until ctx is cancelled. It is
// only useful when sessions carry an expiry.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.PurgeExpired(now); n > 0 {
				log.Debug().Int("sessions", n).Msg("expired sessions purged")
			}
		}
	}
}

func (s *SessionStore) deleteLocked(token domain.Token) bool {
	sess, ok := s.byTok[token]
	if !ok {
		return false
	}
	delete(s.byTok, token)

	if toks, ok := s.byUser[sess.Username]; ok {
		delete(toks, token)
		if len(toks) == 0 {
			delete(s.byUser, sess.Username)
		}
	}
	return true
}
