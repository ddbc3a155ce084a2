// Package redisstore persists identity credentials in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/observability"
	"github.com/mohammed-shakir/watershed-gateway/internal/identity"
)

const keyPrefix = "watershed:"

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

type Store struct {
	rdb *redis.Client
}

var _ identity.Store = (*Store)(nil)

func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     8,
		MinIdleConns: 1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	err := rdb.Ping(ctx).Err()
	observability.ObserveCredentialOp("redis", "ping", err)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Load(ctx context.Context, key string) (identity.Credential, bool, error) {
	b, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCredentialOp("redis", "miss", nil)
		return identity.Credential{}, false, nil
	}
	observability.ObserveCredentialOp("redis", "get", err)
	if err != nil {
		return identity.Credential{}, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	var c identity.Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return identity.Credential{}, false, fmt.Errorf("decode credential %q: %w", key, err)
	}
	return c, true, nil
}

// Save stores c; a non-positive ttl keeps the key until deleted
func (s *Store) Save(ctx context.Context, key string, c identity.Credential, ttl time.Duration) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	err = s.rdb.Set(ctx, keyPrefix+key, b, ttl).Err()
	observability.ObserveCredentialOp("redis", "set", err)
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.rdb.Del(ctx, keyPrefix+key).Err()
	observability.ObserveCredentialOp("redis", "del", err)
	if err != nil {
		return fmt.Errorf("redis DEL %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
