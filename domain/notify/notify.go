// Package notify implements C9 NotificationDispatcher: a rate-limited
// wrapper around a single externally-supplied delivery channel, per
// spec.md §1/§9 ("Dynamic dispatch across notification providers: one
// interface NotificationSink"). Concrete channels (email/SMS/push) are
// external collaborators; this package owns only the Sink seam and the
// rate limiting spec.md §5 names for each notification kind.
package notify

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/entativa/id/errs"
	"github.com/entativa/id/pkg/ratelimit"
)

// Kind enumerates the notification shapes the core ever triggers.
type Kind string

const (
	KindEmailVerification       Kind = "email_verification"
	KindSMSOTP                  Kind = "sms_otp"
	KindPasswordReset           Kind = "password_reset"
	KindSecurityAlert           Kind = "security_alert"
	KindHandleReservationResult Kind = "handle_reservation_decision"
)

// Sink is the single dynamic-dispatch seam named in spec.md §9. Concrete
// implementations (email/SMS/push providers) live outside this repository.
type Sink interface {
	Send(ctx context.Context, kind Kind, recipient string, payload map[string]string) error
}

// LogSink is the one reference Sink Entativa ID core ships: it writes to
// logx instead of delivering anything, since real delivery channels are
// external collaborators per spec.md §1.
type LogSink struct{}

// Send logs the notification at Info level and never fails.
func (LogSink) Send(ctx context.Context, kind Kind, recipient string, payload map[string]string) error {
	logx.WithContext(ctx).Infof("notify: %s -> %s %v", kind, recipient, payload)
	return nil
}

// Dispatcher is C9 NotificationDispatcher: it enforces spec.md §5's
// per-channel send limits (email 10/h; SMS 5/h + 20/day) in front of an
// injected Sink, keyed per recipient so one noisy recipient cannot starve
// another, plus an in-process per-kind token bucket bounding the total
// outbound call rate regardless of recipient.
type Dispatcher struct {
	sink     Sink
	limiter  *ratelimit.Limiter
	throttle *ratelimit.SinkThrottle
}

// NewDispatcher wires a Dispatcher over sink, rate-limited through
// limiter and throttled through throttle. A nil sink falls back to
// LogSink; a nil throttle disables the process-local bound.
func NewDispatcher(sink Sink, limiter *ratelimit.Limiter, throttle *ratelimit.SinkThrottle) *Dispatcher {
	if sink == nil {
		sink = LogSink{}
	}
	return &Dispatcher{sink: sink, limiter: limiter, throttle: throttle}
}

// Send checks the rate windows for kind against recipient and the
// process-local sink throttle, then forwards to the underlying Sink. A
// denial from either returns an *errs.Error of kind Policy, per spec.md
// §7; the send never reaches the sink in that case.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, recipient string, payload map[string]string) error {
	for _, w := range windowsFor(kind) {
		if err := d.limiter.Allow(ctx, string(kind)+":"+w.Period.String(), recipient, w); err != nil {
			return err
		}
	}
	if d.throttle != nil && !d.throttle.Allow(string(kind)) {
		return errs.New(errs.Policy, "outbound send rate exceeded, retry shortly").WithCode("rate_limited")
	}
	return d.sink.Send(ctx, kind, recipient, payload)
}

// windowsFor returns the rate windows spec.md §5 names for kind's delivery
// channel. Kinds with no channel-level limit (e.g. a security alert meant
// to always reach the user) return none.
func windowsFor(kind Kind) []ratelimit.Window {
	switch kind {
	case KindSMSOTP:
		return []ratelimit.Window{ratelimit.SMSSendHourly, ratelimit.SMSSendDaily}
	case KindEmailVerification, KindPasswordReset:
		return []ratelimit.Window{ratelimit.EmailSend}
	default:
		return nil
	}
}
