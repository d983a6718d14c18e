package ake

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darkauth/darkauth/internal/apperr"
)

// RedisLoginSessionStore holds in-flight handshake state between KE1 and
// KE3. A
// handshake that never reaches KE3 simply expires with its key — there is
// no cleanup job to run.
type RedisLoginSessionStore struct {
	rdb *redis.Client
}

func NewRedisLoginSessionStore(rdb *redis.Client) *RedisLoginSessionStore {
	return &RedisLoginSessionStore{rdb: rdb}
}

func (s *RedisLoginSessionStore) Save(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, loginSessionKey(sessionID), data, ttl).Err(); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// LoadAndDelete is single-use by construction: GETDEL is atomic server
// side, so of two concurrent KE3s racing on the same sessionID, exactly
// one observes the value and the other sees it already gone — a plain
// GET followed by a separate DEL would let both read the value before
// either delete fires, letting both finish the login.
func (s *RedisLoginSessionStore) LoadAndDelete(ctx context.Context, sessionID string) ([]byte, error) {
	key := loginSessionKey(sessionID)
	data, err := s.rdb.GetDel(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperr.AuthFailed(redis.Nil)
		}
		return nil, apperr.Internal(err)
	}
	return data, nil
}

func loginSessionKey(sessionID string) string {
	return "ake:login:" + sessionID
}

// RedisPendingRegistrationStore bridges self-service registration's two
// HTTP calls: BeginRegistration's OPRF evaluation must be keyed by the
// subject's eventual stable sub, but that sub
// doesn't exist until FinishRegistration creates the row. The server
// allocates the sub at register/start, evaluates the OPRF against it, and
// stashes {sub, email} here keyed by email until register/finish
// consumes it — the same ephemeral-Redis-state shape as
// RedisLoginSessionStore, just a different key namespace and a longer,
// registration-sized TTL.
type RedisPendingRegistrationStore struct {
	rdb *redis.Client
}

func NewRedisPendingRegistrationStore(rdb *redis.Client) *RedisPendingRegistrationStore {
	return &RedisPendingRegistrationStore{rdb: rdb}
}

const PendingRegistrationTTL = 10 * time.Minute

func (s *RedisPendingRegistrationStore) Save(ctx context.Context, email string, data []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, pendingRegistrationKey(email), data, ttl).Err(); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *RedisPendingRegistrationStore) LoadAndDelete(ctx context.Context, email string) ([]byte, error) {
	data, err := s.rdb.GetDel(ctx, pendingRegistrationKey(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperr.Validation("no registration in progress for this email", nil)
		}
		return nil, apperr.Internal(err)
	}
	return data, nil
}

func pendingRegistrationKey(email string) string {
	return "ake:pending-registration:" + email
}
