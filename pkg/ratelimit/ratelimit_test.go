package ratelimit

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/entativa/id/errs"
	"github.com/entativa/id/store/kv"
)

func TestLimiterDeniesBeyondWindowMax(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(kv.NewMemory(nil))
	w := Window{Max: 3, Period: time.Hour}

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "register", "203.0.113.9", w); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i, err)
		}
	}
	err := l.Allow(ctx, "register", "203.0.113.9", w)
	if !errs.Is(err, errs.Policy) {
		t.Fatalf("expected policy denial, got %v", err)
	}
	if errs.CodeOf(err) != "rate_limited" {
		t.Fatalf("expected rate_limited code, got %q", errs.CodeOf(err))
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(kv.NewMemory(nil))
	w := Window{Max: 1, Period: time.Hour}

	if err := l.Allow(ctx, "login", "alice", w); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if err := l.Allow(ctx, "login", "bob", w); err != nil {
		t.Fatalf("bob should not share alice's counter: %v", err)
	}
}

func TestSinkThrottlePerKind(t *testing.T) {
	th := NewSinkThrottle(rate.Limit(0.001), 2)

	if !th.Allow("sms") || !th.Allow("sms") {
		t.Fatal("expected the burst to be allowed")
	}
	if th.Allow("sms") {
		t.Fatal("expected the bucket to be drained")
	}
	if !th.Allow("email") {
		t.Fatal("expected a different kind to have its own bucket")
	}
}
