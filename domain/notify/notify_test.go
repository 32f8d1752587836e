package notify

import (
	"context"
	"testing"

	"golang.org/x/time/rate"

	"github.com/entativa/id/errs"
	"github.com/entativa/id/pkg/ratelimit"
	"github.com/entativa/id/store/kv"
)

type fakeSink struct {
	calls []string
}

func (f *fakeSink) Send(ctx context.Context, kind Kind, recipient string, payload map[string]string) error {
	f.calls = append(f.calls, string(kind)+":"+recipient)
	return nil
}

func TestDispatcherForwardsToSink(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	limiter := ratelimit.NewLimiter(kv.NewMemory(nil))
	d := NewDispatcher(sink, limiter, nil)

	if err := d.Send(ctx, KindSecurityAlert, "alice@example.com", map[string]string{"reason": "new_device"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sink.calls) != 1 || sink.calls[0] != "security_alert:alice@example.com" {
		t.Fatalf("expected sink to receive the send, got %v", sink.calls)
	}
}

func TestDispatcherEnforcesSMSRateWindows(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	limiter := ratelimit.NewLimiter(kv.NewMemory(nil))
	d := NewDispatcher(sink, limiter, nil)

	for i := 0; i < int(ratelimit.SMSSendHourly.Max); i++ {
		if err := d.Send(ctx, KindSMSOTP, "+15555550100", nil); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if err := d.Send(ctx, KindSMSOTP, "+15555550100", nil); err == nil {
		t.Fatal("expected the send past the hourly SMS window to be rate limited")
	}
	if len(sink.calls) != int(ratelimit.SMSSendHourly.Max) {
		t.Fatalf("expected exactly %d delivered sends, got %d", ratelimit.SMSSendHourly.Max, len(sink.calls))
	}
}

func TestDispatcherHonorsSinkThrottle(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	limiter := ratelimit.NewLimiter(kv.NewMemory(nil))
	throttle := ratelimit.NewSinkThrottle(rate.Limit(0.001), 1)
	d := NewDispatcher(sink, limiter, throttle)

	if err := d.Send(ctx, KindSecurityAlert, "alice@example.com", nil); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	err := d.Send(ctx, KindSecurityAlert, "bob@example.com", nil)
	if !errs.Is(err, errs.Policy) {
		t.Fatalf("expected the drained throttle to deny regardless of recipient, got %v", err)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("expected exactly one delivered send, got %d", len(sink.calls))
	}
}

func TestNilSinkFallsBackToLogSink(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewLimiter(kv.NewMemory(nil))
	d := NewDispatcher(nil, limiter, nil)

	if err := d.Send(ctx, KindHandleReservationResult, "bob@example.com", map[string]string{"decision": "approved"}); err != nil {
		t.Fatalf("Send with fallback LogSink: %v", err)
	}
}

func TestWindowsForUnlimitedKind(t *testing.T) {
	if ws := windowsFor(KindSecurityAlert); ws != nil {
		t.Fatalf("expected security alerts to carry no rate window, got %v", ws)
	}
}
