// Package ratelimit implements the two rate-limiting shapes named in
// spec.md §5: a distributed fixed-window counter keyed
// "rate:{action}:{key}" in the KeyValueStore for per-(identity, action) and
// per-(client_ip, endpoint) limits (login, register, password-reset, ...),
// and an in-process token bucket (golang.org/x/time/rate, already an
// indirect dependency of the teacher's go.mod with no direct import there)
// for NotificationDispatcher send-side throttling where a single process
// fronts all outbound sends.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entativa/id/errs"
	"github.com/entativa/id/store/kv"
)

// Window is a distributed fixed-window counter limit: at most Max events
// per Period.
type Window struct {
	Max    int64
	Period time.Duration
}

// Limiter enforces Window limits against a KeyValueStore, per spec.md §6's
// "rate:{action}:{key}" namespace.
type Limiter struct {
	store kv.Store
}

// NewLimiter builds a Limiter backed by store.
func NewLimiter(store kv.Store) *Limiter {
	return &Limiter{store: store}
}

// Allow increments the counter for (action, key) and reports whether the
// event is within w. On denial it returns an *errs.Error of kind Policy
// with code "rate_limited", per spec.md §7 ("Policy... rate limit
// exceeded... Includes remediation hints").
func (l *Limiter) Allow(ctx context.Context, action, key string, w Window) error {
	counterKey := fmt.Sprintf("rate:%s:%s", action, key)
	count, err := l.store.Incr(ctx, counterKey, w.Period)
	if err != nil {
		return errs.Wrap(errs.Transient, "rate limiter increment", err)
	}
	if count > w.Max {
		ttl, _ := l.store.TTL(ctx, counterKey)
		return errs.New(errs.Policy, fmt.Sprintf("rate limit exceeded for %s, retry after %s", action, ttl)).
			WithCode("rate_limited")
	}
	return nil
}

// Standard named windows from spec.md §5.
var (
	Login         = Window{Max: 5, Period: 15 * time.Minute}
	Register      = Window{Max: 3, Period: 24 * time.Hour}
	PasswordReset = Window{Max: 3, Period: time.Hour}
	EmailSend     = Window{Max: 10, Period: time.Hour}
	SMSSendHourly = Window{Max: 5, Period: time.Hour}
	SMSSendDaily  = Window{Max: 20, Period: 24 * time.Hour}
)

// SinkThrottle is an in-process token bucket guarding a single
// NotificationDispatcher sink, independent of the distributed per-recipient
// windows above — it bounds total outbound call rate regardless of which
// recipient is being notified.
type SinkThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	newLim   func() *rate.Limiter
}

// NewSinkThrottle returns a SinkThrottle that allows burst events then
// refills at r per second, per notification kind.
func NewSinkThrottle(r rate.Limit, burst int) *SinkThrottle {
	return &SinkThrottle{
		limiters: make(map[string]*rate.Limiter),
		newLim:   func() *rate.Limiter { return rate.NewLimiter(r, burst) },
	}
}

// Allow reports whether a send of the given kind may proceed right now.
func (t *SinkThrottle) Allow(kind string) bool {
	t.mu.Lock()
	l, ok := t.limiters[kind]
	if !ok {
		l = t.newLim()
		t.limiters[kind] = l
	}
	t.mu.Unlock()
	return l.Allow()
}
