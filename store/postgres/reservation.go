package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
)

const (
	insertReservationQuery = `
		INSERT INTO reservation_requests (id, identity_id, requested_handle, justification, evidence_uris,
			status, reviewer, rejection_reason, appealed_at, created_at, decided_at)
		VALUES (:id, :identity_id, :requested_handle, :justification, :evidence_uris,
			:status, :reviewer, :rejection_reason, :appealed_at, :created_at, :decided_at)
		ON CONFLICT ON CONSTRAINT reservation_requests_one_pending_per_handle DO NOTHING`

	selectPendingReservationQuery = `
		SELECT id, identity_id, requested_handle, justification, evidence_uris, status, reviewer,
			rejection_reason, appealed_at, created_at, decided_at
		FROM reservation_requests
		WHERE identity_id = $1 AND requested_handle = $2 AND status = 'pending'`

	selectReservationByIDQuery = `
		SELECT id, identity_id, requested_handle, justification, evidence_uris, status, reviewer,
			rejection_reason, appealed_at, created_at, decided_at
		FROM reservation_requests WHERE id = $1`

	updateReservationQuery = `
		UPDATE reservation_requests
		SET status = :status, reviewer = :reviewer, rejection_reason = :rejection_reason,
			appealed_at = :appealed_at, decided_at = :decided_at
		WHERE id = :id`

	insertHandleHistoryQuery = `
		INSERT INTO handle_change_history (id, identity_id, old_handle, new_handle, reason, changed_by, created_at)
		VALUES (:id, :identity_id, :old_handle, :new_handle, :reason, :changed_by, :created_at)`
)

// ReservationRepository is HandleGovernor's view of the reservation
// workflow lifecycle (spec.md §4.1).
type ReservationRepository interface {
	// CreateReservationIfAbsent atomically verifies no pending reservation
	// exists for (identityID, handle) and inserts one, per spec.md §5's
	// atomicity requirement. Returns ok=false without error if one already
	// exists.
	CreateReservationIfAbsent(ctx context.Context, req *model.ReservationRequest) (ok bool, err error)
	GetReservationByID(ctx context.Context, id uuid.UUID) (*model.ReservationRequest, error)
	UpdateReservation(ctx context.Context, req *model.ReservationRequest) error
	RecordHandleChange(ctx context.Context, h *model.HandleChangeHistory) error
}

// CreateReservationIfAbsent relies on a partial unique constraint
// (reservation_requests_one_pending_per_handle, defined in schema.go over
// (identity_id, requested_handle) WHERE status = 'pending') plus
// ON CONFLICT DO NOTHING so the check-and-insert is atomic at the database
// level rather than racing a SELECT against a later INSERT.
func (s *Store) CreateReservationIfAbsent(ctx context.Context, req *model.ReservationRequest) (bool, error) {
	result, err := s.db.NamedExecContext(ctx, insertReservationQuery, req)
	if err != nil {
		return false, errs.Wrap(errs.Transient, "insert reservation", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errs.Wrap(errs.Transient, "reservation rows affected", err)
	}
	return affected == 1, nil
}

func (s *Store) GetReservationByID(ctx context.Context, id uuid.UUID) (*model.ReservationRequest, error) {
	var out model.ReservationRequest
	if err := s.get(ctx, &out, selectReservationByIDQuery, id); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateReservation(ctx context.Context, req *model.ReservationRequest) error {
	return s.exec(ctx, updateReservationQuery, req)
}

func (s *Store) RecordHandleChange(ctx context.Context, h *model.HandleChangeHistory) error {
	return s.exec(ctx, insertHandleHistoryQuery, h)
}
