package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hcserver/accounts/internal/core/domain"
)

const (
	sessionKeyPrefix = "session:tok:"
	userKeyPrefix    = "session:user:"

	maxWatchRetries = 3
)

// SessionStore keeps live sessions in Redis so several API instances share
// them.
//
// Key format:
//
//	session:tok:<token>     JSON-encoded domain.Session, PX = time to expiry
//	session:user:<username> set of the user's live tokens
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a SessionStore wrapping the given Redis client.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// Insert implements ports.SessionStore. SET NX makes insert-if-absent atomic
// across processes.
func (s *SessionStore) Insert(ctx context.Context, sess domain.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := ttlFor(sess, time.Now())
	ok, err := s.client.SetNX(ctx, sessionKey(sess.Token), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if !ok {
		return domain.ErrTokenCollision
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, userKey(sess.Username), string(sess.Token))
	if ttl > 0 {
		pipe.Expire(ctx, userKey(sess.Username), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// An unindexed session would survive DeleteUser.
		s.client.Del(ctx, sessionKey(sess.Token))
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

// Get implements ports.SessionStore.
func (s *SessionStore) Get(ctx context.Context, token domain.Token) (domain.Session, bool, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return sess, true, nil
}

// Delete implements ports.SessionStore.
func (s *SessionStore) Delete(ctx context.Context, token domain.Token) (bool, error) {
	raw, err := s.client.GetDel(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("delete session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err == nil && sess.Username != "" {
		if err := s.client.SRem(ctx, userKey(sess.Username), string(token)).Err(); err != nil {
			return true, fmt.Errorf("unindex session: %w", err)
		}
	}
	return true, nil
}

// DeleteUser implements ports.SessionStore. The user's token set is WATCHed
// so a login racing with the purge forces a retry instead of leaving a
// session behind.
func (s *SessionStore) DeleteUser(ctx context.Context, username string) (int, error) {
	key := userKey(username)

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		removed := 0
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			tokens, err := tx.SMembers(ctx, key).Result()
			if err != nil {
				return err
			}

			cmds := make([]*redis.IntCmd, 0, len(tokens))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, tok := range tokens {
					cmds = append(cmds, pipe.Del(ctx, sessionKey(domain.Token(tok))))
				}
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			for _, cmd := range cmds {
				removed += int(cmd.Val())
			}
			return nil
		}, key)

		if err == nil {
			return removed, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return 0, fmt.Errorf("delete user sessions: %w", err)
		}
	}
	return 0, fmt.Errorf("delete user sessions: %w", redis.TxFailedErr)
}

// ttlFor converts the session expiry into a Redis TTL. Zero means no expiry.
func ttlFor(sess domain.Session, now time.Time) time.Duration {
	if sess.ExpiresAt.IsZero() {
		return 0
	}
	ttl := sess.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func sessionKey(token domain.Token) string {
	return sessionKeyPrefix + string(token)
}

func userKey(username string) string {
	return userKeyPrefix + username
}
