// Package redisx wraps the few Redis primitives the engine relies on:
// set-if-absent claims, plain lookups and a token-guarded lock.  A Store
// built from a nil client turns every claim into an immediate success, so
// the service keeps working (with weaker dedup) when Redis is down.
package redisx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Enabled reports whether a client is configured.
func (s *Store) Enabled() bool { return s != nil && s.rdb != nil }

// Claim sets key to value only if it does not exist yet.  It reports true
// when this caller now owns the key.
func (s *Store) Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Lookup returns the value stored under key.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	if !s.Enabled() {
		return "", false, nil
	}
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Remember overwrites key with value.
func (s *Store) Remember(ctx context.Context, key, value string, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Forget deletes key.
func (s *Store) Forget(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	return s.rdb.Del(ctx, key).Err()
}

var unlockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// TryLock acquires key for ttl.  The returned release func deletes the key
// only if this caller still holds it.
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if !s.Enabled() {
		return func() {}, true, nil
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, err
	}
	token := hex.EncodeToString(buf)
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, s.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
