package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entativa/id/domain/audit"
	"github.com/entativa/id/domain/model"
)

const (
	insertAuditEventQuery = `
		INSERT INTO audit_events (id, identity_id, actor_id, action, details, ip, user_agent,
			lawful_basis, timestamp)
		VALUES (:id, :identity_id, :actor_id, :action, :details, :ip, :user_agent, :lawful_basis, :timestamp)`
)

// auditEventRow is the sqlx-mapped shape of AuditEvent: Details is a
// dynamic map (spec.md §9: "closed set of known keys per event type;
// unknown keys pass through as opaque string->string") so it is persisted
// as JSON rather than columns, the same pattern the teacher's
// models.StringArray uses for text[] columns.
type auditEventRow struct {
	model.AuditEvent
	DetailsJSON []byte `db:"details"`
}

// AuditEventRepository is AuditRecorder's durable, append-only store.
type AuditEventRepository interface {
	InsertAuditEvent(ctx context.Context, event *model.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter audit.Filter) ([]model.AuditEvent, error)
}

func (s *Store) InsertAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	row := auditEventRow{AuditEvent: *event, DetailsJSON: detailsJSON}
	return s.exec(ctx, insertAuditEventQuery, row)
}

func (s *Store) ListAuditEvents(ctx context.Context, filter audit.Filter) ([]model.AuditEvent, error) {
	query := `SELECT id, identity_id, actor_id, action, details, ip, user_agent, lawful_basis, timestamp
		FROM audit_events WHERE 1=1`
	var args []interface{}
	n := 1
	if filter.IdentityID != "" {
		query += placeholder("identity_id", &n)
		args = append(args, filter.IdentityID)
	}
	if filter.ActorID != "" {
		query += placeholder("actor_id", &n)
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		query += placeholder("action", &n)
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", n)
		n++
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", n)
		n++
		args = append(args, filter.Until)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []auditEventRow
	if err := s.list(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.AuditEvent, 0, len(rows))
	for _, r := range rows {
		evt := r.AuditEvent
		_ = json.Unmarshal(r.DetailsJSON, &evt.Details)
		out = append(out, evt)
	}
	return out, nil
}

func placeholder(col string, n *int) string {
	s := fmt.Sprintf(" AND %s = $%d", col, *n)
	*n++
	return s
}
