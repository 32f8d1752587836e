// Package audit implements C10 AuditRecorder: an append-only security and
// compliance event log, per spec.md §3 AuditEvent and §4.9. It never
// mutates or deletes a written row. Query is the GDPR data-export hook
// spec.md §1 carves out of scope ("hooks exposed; logic out of scope") —
// Query is the hook itself; export formatting is the embedding
// application's responsibility.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/internal/clock"
)

// Repository is AuditRecorder's durable persistence dependency.
type Repository interface {
	InsertAuditEvent(ctx context.Context, event *model.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter Filter) ([]model.AuditEvent, error)
}

// Filter narrows Query by identity, actor, action, and time range.
type Filter struct {
	IdentityID string
	ActorID    string
	Action     string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Recorder is C10 AuditRecorder.
type Recorder struct {
	repo  Repository
	clock clock.Clock
}

// NewRecorder wires a Recorder over repo.
func NewRecorder(repo Repository, clk clock.Clock) *Recorder {
	return &Recorder{repo: repo, clock: clk}
}

// Record appends event, stamping an id and timestamp if the caller left
// them zero. It records only what callers pass it: domain/mfa reports factor
// deactivation and backup-code exhaustion through RecordSecurityEvent, while
// the Auth and Policy failures of domain/session and domain/oauth2 are not
// recorded here.
func (r *Recorder) Record(ctx context.Context, event model.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock.Now()
	}
	if err := r.repo.InsertAuditEvent(ctx, &event); err != nil {
		logx.WithContext(ctx).Errorf("audit: record failed: %v", err)
		return err
	}
	return nil
}

// RecordSecurityEvent satisfies the narrow AuditSink shape domain/mfa (and
// similarly-shaped callers) depend on: an identity id, an action, and a
// flat string->string detail map, per spec.md §9's closed-metadata-keys
// rule ("unknown keys pass through as opaque string->string").
func (r *Recorder) RecordSecurityEvent(ctx context.Context, identityID uuid.UUID, action string, details map[string]string) error {
	return r.Record(ctx, model.AuditEvent{IdentityID: &identityID, Action: action, Details: details})
}

// Query supports the compliance/export hook named above.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]model.AuditEvent, error) {
	return r.repo.ListAuditEvents(ctx, filter)
}
