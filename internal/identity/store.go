package identity

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/observability"
)

type memEntry struct {
	cred     Credential
	expireAt time.Time
}

// MemoryStore keeps credentials in process, bounded by an LRU
type MemoryStore struct {
	lru *lru.Cache[string, memEntry]
	now func() time.Time
}

func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 128
	}
	c, _ := lru.New[string, memEntry](size)
	return &MemoryStore{lru: c, now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, key string) (Credential, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		observability.ObserveCredentialOp("memory", "miss", nil)
		return Credential{}, false, nil
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		m.lru.Remove(key)
		observability.ObserveCredentialOp("memory", "expired", nil)
		return Credential{}, false, nil
	}
	observability.ObserveCredentialOp("memory", "hit", nil)
	return e.cred, true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, c Credential, ttl time.Duration) error {
	e := memEntry{cred: c}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	observability.ObserveCredentialOp("memory", "save", nil)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	observability.ObserveCredentialOp("memory", "delete", nil)
	return nil
}

// TieredStore reads through a fast front store to a persistent back store
type TieredStore struct {
	front Store
	back  Store
	ttl   time.Duration
}

func NewTieredStore(front, back Store, frontTTL time.Duration) *TieredStore {
	return &TieredStore{front: front, back: back, ttl: frontTTL}
}

func (t *TieredStore) Load(ctx context.Context, key string) (Credential, bool, error) {
	if c, ok, err := t.front.Load(ctx, key); err == nil && ok {
		return c, true, nil
	}
	c, ok, err := t.back.Load(ctx, key)
	if err != nil || !ok {
		return Credential{}, false, err
	}
	_ = t.front.Save(ctx, key, c, t.ttl)
	return c, true, nil
}

func (t *TieredStore) Save(ctx context.Context, key string, c Credential, ttl time.Duration) error {
	if err := t.back.Save(ctx, key, c, ttl); err != nil {
		return err
	}
	fttl := t.ttl
	if ttl > 0 && (fttl <= 0 || ttl < fttl) {
		fttl = ttl
	}
	return t.front.Save(ctx, key, c, fttl)
}

func (t *TieredStore) Delete(ctx context.Context, key string) error {
	return errors.Join(t.front.Delete(ctx, key), t.back.Delete(ctx, key))
}
