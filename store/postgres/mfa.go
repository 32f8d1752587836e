package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/entativa/id/domain/model"
)

const (
	insertMFAMethodQuery = `
		INSERT INTO mfa_methods (id, identity_id, kind, secret_enc, verified, is_primary, priority,
			usage_count, failure_count, last_used_at, created_at)
		VALUES (:id, :identity_id, :kind, :secret_enc, :verified, :is_primary, :priority,
			:usage_count, :failure_count, :last_used_at, :created_at)`

	listMFAMethodsByIdentityIDQuery = `
		SELECT id, identity_id, kind, secret_enc, verified, is_primary, priority, usage_count,
			failure_count, last_used_at, created_at
		FROM mfa_methods WHERE identity_id = $1`

	updateMFAMethodQuery = `
		UPDATE mfa_methods
		SET secret_enc = :secret_enc, verified = :verified, is_primary = :is_primary, usage_count = :usage_count,
			failure_count = :failure_count, last_used_at = :last_used_at
		WHERE id = :id`

	clearPrimaryMFAQuery = `UPDATE mfa_methods SET is_primary = false WHERE identity_id = $1`
)

// MFAMethodRepository is MFAManager's durable view of enrolled factors.
type MFAMethodRepository interface {
	CreateMFAMethod(ctx context.Context, m *model.MFAMethod) error
	ListMFAMethodsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.MFAMethod, error)
	UpdateMFAMethod(ctx context.Context, m *model.MFAMethod) error
	// ClearPrimary and then set a single method as primary, atomically
	// under one transaction, to uphold spec.md §3's invariant ("at most
	// one primary=true per user").
	SetPrimaryMFAMethod(ctx context.Context, identityID uuid.UUID, methodID uuid.UUID) error
}

func (s *Store) CreateMFAMethod(ctx context.Context, m *model.MFAMethod) error {
	return s.exec(ctx, insertMFAMethodQuery, m)
}

func (s *Store) ListMFAMethodsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.MFAMethod, error) {
	var out []model.MFAMethod
	if err := s.list(ctx, &out, listMFAMethodsByIdentityIDQuery, identityID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateMFAMethod(ctx context.Context, m *model.MFAMethod) error {
	return s.exec(ctx, updateMFAMethodQuery, m)
}

func (s *Store) SetPrimaryMFAMethod(ctx context.Context, identityID, methodID uuid.UUID) error {
	return s.transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, clearPrimaryMFAQuery, identityID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE mfa_methods SET is_primary = true WHERE id = $1`, methodID)
		return err
	})
}
