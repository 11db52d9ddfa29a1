package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hcserver/accounts/internal/core/domain"
	"github.com/hcserver/accounts/internal/core/ports"
)

func TestAuthService_Login_ThenResolve(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	token, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, err := domain.ParseToken(string(token)); err != nil {
		t.Fatalf("issued token %q is not well formed", token)
	}

	user, err := f.auth.Resolve(ctx, string(token))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %s", user.Username)
	}
	if got := f.audit.kinds(); len(got) != 1 || got[0] != domain.AuditLoginSucceeded {
		t.Fatalf("unexpected audit events: %v", got)
	}
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	cases := map[string][2]string{
		"wrong secret":  {"alice", "nope"},
		"unknown user":  {"mallory", "secret1"},
		"empty secret":  {"alice", ""},
		"empty account": {"", ""},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			before := f.sessions.Len()
			token, err := f.auth.Login(ctx, c[0], c[1])
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if token != "" {
				t.Fatalf("expected no token, got %q", token)
			}
			if f.sessions.Len() != before {
				t.Fatalf("failed login changed the session count")
			}
		})
	}
}

func TestAuthService_Login_StoreFailure(t *testing.T) {
	f := newFixture(0)
	f.users.setErr(errStoreDown)

	_, err := f.auth.Login(context.Background(), "alice", "secret1")
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("store failure must not look like bad credentials")
	}
}

func TestAuthService_Login_SessionStoreFailure(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	f.auth.sessions = failingStore{SessionStore: f.sessions, err: errStoreDown}

	if _, err := f.auth.Login(context.Background(), "alice", "secret1"); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthService_Login_RetriesOnCollision(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	first, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	fresh, _ := domain.NewToken()
	queue := []domain.Token{first, first, fresh}
	f.auth.newToken = func() (domain.Token, error) {
		tok := queue[0]
		queue = queue[1:]
		return tok, nil
	}

	second, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if second != fresh {
		t.Fatalf("expected retry to land on %s, got %s", fresh, second)
	}
	if f.sessions.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", f.sessions.Len())
	}
}

func TestAuthService_Login_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	first, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	f.auth.newToken = func() (domain.Token, error) { return first, nil }

	if _, err := f.auth.Login(ctx, "alice", "secret1"); !errors.Is(err, domain.ErrTokenCollision) {
		t.Fatalf("expected ErrTokenCollision, got %v", err)
	}
	if f.sessions.Len() != 1 {
		t.Fatalf("existing session must be untouched, got %d sessions", f.sessions.Len())
	}
}

func TestAuthService_Login_ConcurrentTokensAreDistinct(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	const n = 50
	tokens := make([]domain.Token, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.auth.Login(ctx, "alice", "secret1")
		}(i)
	}
	wg.Wait()

	seen := make(map[domain.Token]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("login %d failed: %v", i, errs[i])
		}
		if seen[tokens[i]] {
			t.Fatalf("token %s issued twice", tokens[i])
		}
		seen[tokens[i]] = true

		if _, err := f.auth.Resolve(ctx, string(tokens[i])); err != nil {
			t.Fatalf("token %d does not resolve: %v", i, err)
		}
	}
	if f.sessions.Len() != n {
		t.Fatalf("expected %d sessions, got %d", n, f.sessions.Len())
	}
}

func TestAuthService_Resolve_Unauthorized(t *testing.T) {
	f := newFixture(0)
	neverIssued, _ := domain.NewToken()

	for name, raw := range map[string]string{
		"empty":        "",
		"bogus":        "bogus",
		"never issued": string(neverIssued),
		"not v4":       "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	} {
		t.Run(name, func(t *testing.T) {
			user, err := f.auth.Resolve(context.Background(), raw)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if user != nil {
				t.Fatalf("expected no user, got %+v", user)
			}
		})
	}
}

func TestAuthService_Resolve_StoreFailure(t *testing.T) {
	f := newFixture(0)
	f.auth.sessions = failingStore{SessionStore: f.sessions, err: errStoreDown}
	tok, _ := domain.NewToken()

	_, err := f.auth.Resolve(context.Background(), string(tok))
	if !errors.Is(err, errStoreDown) || errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthService_Resolve_ReflectsProfileEdits(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	token, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	f.users.users["alice"].DisplayName = "Alice A."

	user, err := f.auth.Resolve(ctx, string(token))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if user.DisplayName != "Alice A." {
		t.Fatalf("expected fresh record, got %+v", user)
	}
}

func TestAuthService_Resolve_Expired(t *testing.T) {
	f := newFixture(time.Minute)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.auth.now = func() time.Time { return now }

	token, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, err := f.auth.Resolve(ctx, string(token)); err != nil {
		t.Fatalf("fresh session should resolve: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := f.auth.Resolve(ctx, string(token)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("expired session should be dropped")
	}
}

func TestAuthService_Resolve_OrphanedSession(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	token, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	delete(f.users.users, "alice")

	if _, err := f.auth.Resolve(ctx, string(token)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("orphaned session should be dropped")
	}
}

func TestAuthService_Revoke(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	ctx := context.Background()

	keep, _ := f.auth.Login(ctx, "alice", "secret1")
	drop, _ := f.auth.Login(ctx, "alice", "secret1")

	if err := f.auth.Revoke(ctx, string(drop)); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if _, err := f.auth.Resolve(ctx, string(drop)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("revoked token still resolves: %v", err)
	}
	if _, err := f.auth.Resolve(ctx, string(keep)); err != nil {
		t.Fatalf("other session was affected: %v", err)
	}

	// Idempotent, including for input that was never a token.
	for _, raw := range []string{string(drop), "", "bogus"} {
		if err := f.auth.Revoke(ctx, raw); err != nil {
			t.Fatalf("Revoke(%q) returned error: %v", raw, err)
		}
	}
	if f.sessions.Len() != 1 {
		t.Fatalf("expected 1 session left, got %d", f.sessions.Len())
	}

	logouts := 0
	for _, k := range f.audit.kinds() {
		if k == domain.AuditLogout {
			logouts++
		}
	}
	if logouts != 1 {
		t.Fatalf("expected exactly one logout event, got %d", logouts)
	}
}

func TestAuthService_RevokeUser(t *testing.T) {
	f := newFixture(0)
	f.users.seed("alice", "secret1")
	f.users.seed("bob", "secret2")
	ctx := context.Background()

	a1, _ := f.auth.Login(ctx, "alice", "secret1")
	a2, _ := f.auth.Login(ctx, "alice", "secret1")
	b1, _ := f.auth.Login(ctx, "bob", "secret2")

	n, err := f.auth.RevokeUser(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeUser returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", n)
	}
	for _, tok := range []domain.Token{a1, a2} {
		if _, err := f.auth.Resolve(ctx, string(tok)); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("alice token still resolves: %v", err)
		}
	}
	if _, err := f.auth.Resolve(ctx, string(b1)); err != nil {
		t.Fatalf("bob's session was affected: %v", err)
	}
}

// deletingVerifier removes the account right after a successful check,
// standing in for a DELETE /users that lands between Verify and Insert.
type deletingVerifier struct {
	inner *CredentialVerifier
	after func()
}

func (v deletingVerifier) Verify(ctx context.Context, username, secret string) (*domain.User, bool, error) {
	user, ok, err := v.inner.Verify(ctx, username, secret)
	if ok {
		v.after()
	}
	return user, ok, err
}

func TestAuthService_Login_AccountDeletedMidLogin(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, ports.CreateUserInput{Username: "alice", Password: "secret1"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	f.auth.verifier = deletingVerifier{
		inner: NewCredentialVerifier(f.users, bcrypt.MinCost),
		after: func() {
			if err := f.svc.Delete(ctx, "alice"); err != nil {
				t.Fatalf("Delete returned error: %v", err)
			}
		},
	}

	token, err := f.auth.Login(ctx, "alice", "secret1")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got token=%q err=%v", token, err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("session outlived its account: %d live", f.sessions.Len())
	}
}

func TestAuthService_Resolve_RecreatedAccount(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	if _, err := f.svc.Create(ctx, ports.CreateUserInput{Username: "alice", Password: "secret1"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	token, err := f.auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// Remove the account behind the authenticator's back, the way a delete
	// that missed this session would, and register the name again.
	delete(f.users.users, "alice")
	clock = clock.Add(time.Millisecond)
	if _, err := f.svc.Create(ctx, ports.CreateUserInput{Username: "alice", Password: "newowner"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if user, err := f.auth.Resolve(ctx, string(token)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("old token opened the new account: user=%+v err=%v", user, err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("stale session should be dropped")
	}
}
