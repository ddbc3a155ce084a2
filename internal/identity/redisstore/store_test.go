package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/watershed-gateway/internal/identity"
)

// creates new store connected to miniredis for testing
func newMini(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	s, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestSaveLoadDelete(t *testing.T) {
	s, _ := newMini(t)
	ctx := context.Background()

	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	in := identity.Credential{Server: "https://www.arcgis.com/sharing", Token: "t1", Expires: exp}
	if err := s.Save(ctx, "cred:1", in, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx, "cred:1")
	if err != nil || !ok {
		t.Fatalf("Load=%v,%v", ok, err)
	}
	if got.Token != "t1" || !got.Expires.Equal(exp) || got.Server != in.Server {
		t.Fatalf("got %+v want %+v", got, in)
	}

	if err := s.Delete(ctx, "cred:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Load(ctx, "cred:1"); ok || err != nil {
		t.Fatalf("after delete ok=%v err=%v", ok, err)
	}
}

func TestSave_TTLExpires(t *testing.T) {
	s, mr := newMini(t)
	ctx := context.Background()

	if err := s.Save(ctx, "k", identity.Credential{Token: "t"}, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "k"); ttl != time.Minute {
		t.Fatalf("ttl=%v want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Load(ctx, "k"); ok {
		t.Fatal("credential should have expired")
	}
}

func TestLoad_CorruptValue(t *testing.T) {
	s, mr := newMini(t)
	if err := mr.Set(keyPrefix+"bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := s.Load(context.Background(), "bad"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestTieredOverRedis_SurvivesFrontLoss(t *testing.T) {
	s, _ := newMini(t)
	ctx := context.Background()

	first := identity.NewTieredStore(identity.NewMemoryStore(4), s, time.Minute)
	if err := first.Save(ctx, "cred:x", identity.Credential{Token: "keep"}, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// a fresh process has an empty front store
	second := identity.NewTieredStore(identity.NewMemoryStore(4), s, time.Minute)
	c, ok, err := second.Load(ctx, "cred:x")
	if err != nil || !ok || c.Token != "keep" {
		t.Fatalf("Load=%+v,%v,%v", c, ok, err)
	}
}
