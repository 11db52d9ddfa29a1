package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/infrastructure/db/memory"
)

var errStoreDown = errors.New("store unavailable")

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	err   error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, exists := r.users[user.Username]; exists {
		return domain.ErrUserExists
	}
	r.users[user.Username] = cloneUser(user)
	return nil
}

func (r *stubUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, exists := r.users[user.Username]; !exists {
		return domain.ErrUserNotFound
	}
	r.users[user.Username] = cloneUser(user)
	return nil
}

func (r *stubUserRepo) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, exists := r.users[username]; !exists {
		return domain.ErrUserNotFound
	}
	delete(r.users, username)
	return nil
}

func (r *stubUserRepo) seed(username, password string) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	r.users[username] = &domain.User{Username: username, PasswordHash: string(h)}
}

func (r *stubUserRepo) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (p *recordingPublisher) Publish(e domain.AuditEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []domain.AuditKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AuditKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

// failingStore wraps a real store and fails every call with err.
type failingStore struct {
	*memory.SessionStore
	err error
}

func (s failingStore) Insert(context.Context, domain.Session) error { return s.err }

func (s failingStore) Get(context.Context, domain.Token) (domain.Session, bool, error) {
	return domain.Session{}, false, s.err
}

type fixture struct {
	users    *stubUserRepo
	sessions *memory.SessionStore
	audit    *recordingPublisher
	auth     *AuthService
	svc      *UserService
}

func newFixture(ttl time.Duration) *fixture {
	f := &fixture{
		users:    newStubUserRepo(),
		sessions: memory.NewSessionStore(),
		audit:    &recordingPublisher{},
	}
	verifier := NewCredentialVerifier(f.users, bcrypt.MinCost)
	f.auth = NewAuthService(verifier, f.users, f.sessions, f.audit, ttl, zerolog.Nop())
	f.svc = NewUserService(f.users, f.auth, bcrypt.MinCost, zerolog.Nop())
	return f
}
