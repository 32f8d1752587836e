package kv

import (
	"context"
	"testing"
	"time"
)

func frozenNow(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestMemoryStoreGetSetWithTTL(t *testing.T) {
	ctx := context.Background()
	now, advance := frozenNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(now)

	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get: %q %v", got, err)
	}

	advance(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStoreSetNXOnlyFirstWins(t *testing.T) {
	ctx := context.Background()
	now, advance := frozenNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(now)

	first, err := m.SetNX(ctx, "k", "a", time.Minute)
	if err != nil || !first {
		t.Fatalf("first SetNX: %v %v", first, err)
	}
	second, err := m.SetNX(ctx, "k", "b", time.Minute)
	if err != nil || second {
		t.Fatalf("second SetNX should lose: %v %v", second, err)
	}

	// Expiry frees the key for a new claimant.
	advance(2 * time.Minute)
	third, err := m.SetNX(ctx, "k", "c", time.Minute)
	if err != nil || !third {
		t.Fatalf("SetNX after expiry: %v %v", third, err)
	}
}

func TestMemoryStoreIncrWindowResets(t *testing.T) {
	ctx := context.Background()
	now, advance := frozenNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(now)

	for want := int64(1); want <= 3; want++ {
		got, err := m.Incr(ctx, "rate:login:bob", 15*time.Minute)
		if err != nil || got != want {
			t.Fatalf("Incr: got %d want %d (%v)", got, want, err)
		}
	}

	advance(16 * time.Minute)
	got, err := m.Incr(ctx, "rate:login:bob", 15*time.Minute)
	if err != nil || got != 1 {
		t.Fatalf("expected counter to restart at 1 after the window, got %d (%v)", got, err)
	}
}

func TestMemoryStoreSets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	if err := m.SAdd(ctx, "s", "alice"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	ok, err := m.SIsMember(ctx, "s", "alice")
	if err != nil || !ok {
		t.Fatalf("SIsMember: %v %v", ok, err)
	}
	if err := m.SRem(ctx, "s", "alice"); err != nil {
		t.Fatalf("SRem: %v", err)
	}
	ok, err = m.SIsMember(ctx, "s", "alice")
	if err != nil || ok {
		t.Fatalf("expected member removed, got %v %v", ok, err)
	}
}

func TestLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	now, advance := frozenNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewLocker(NewMemory(now))

	unlock, ok, err := l.Lock(ctx, "identity:1", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("first Lock: %v %v", ok, err)
	}
	if _, ok, _ := l.Lock(ctx, "identity:1", 30*time.Second); ok {
		t.Fatal("expected second Lock on a held key to fail")
	}
	unlock(ctx)
	if _, ok, _ := l.Lock(ctx, "identity:1", 30*time.Second); !ok {
		t.Fatal("expected Lock to succeed after unlock")
	}

	// A crashed holder's lease expires on its own.
	advance(time.Minute)
	if _, ok, _ := l.Lock(ctx, "identity:1", 30*time.Second); !ok {
		t.Fatal("expected Lock to succeed after the lease expired")
	}
}
