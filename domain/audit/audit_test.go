package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/internal/clock"
)

type fakeAuditRepo struct {
	events []model.AuditEvent
}

func (r *fakeAuditRepo) InsertAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	r.events = append(r.events, *e)
	return nil
}

func (r *fakeAuditRepo) ListAuditEvents(ctx context.Context, filter Filter) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	for _, e := range r.events {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func TestRecordStampsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAuditRepo{}
	frozen := clock.NewFrozen(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC))
	r := NewRecorder(repo, frozen)

	identityID := uuid.New()
	if err := r.Record(ctx, model.AuditEvent{IdentityID: &identityID, Action: "login_failed"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected one row inserted, got %d", len(repo.events))
	}
	got := repo.events[0]
	if got.ID == uuid.Nil {
		t.Fatal("expected Record to stamp a non-nil id")
	}
	if !got.Timestamp.Equal(frozen.Now()) {
		t.Fatalf("expected Record to stamp the clock's time, got %v", got.Timestamp)
	}
}

func TestRecordSecurityEventCarriesDetails(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAuditRepo{}
	r := NewRecorder(repo, clock.NewFrozen(time.Now()))

	identityID := uuid.New()
	if err := r.RecordSecurityEvent(ctx, identityID, "mfa_factor_deactivated", map[string]string{"kind": "totp"}); err != nil {
		t.Fatalf("RecordSecurityEvent: %v", err)
	}
	got := repo.events[0]
	if got.IdentityID == nil || *got.IdentityID != identityID {
		t.Fatal("expected the identity id to be attached")
	}
	if got.Details["kind"] != "totp" {
		t.Fatalf("expected details to pass through, got %v", got.Details)
	}
}

func TestQueryFiltersByAction(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAuditRepo{}
	r := NewRecorder(repo, clock.NewFrozen(time.Now()))

	if err := r.Record(ctx, model.AuditEvent{Action: "login_failed"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Record(ctx, model.AuditEvent{Action: "login_succeeded"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := r.Query(ctx, Filter{Action: "login_failed"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Action != "login_failed" {
		t.Fatalf("expected exactly the login_failed event, got %v", got)
	}
}
