package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
)

const (
	insertSessionQuery = `
		INSERT INTO sessions (id, identity_id, device_id, user_agent, ip, geo_country, access_token_id,
			refresh_token_id, created_at, expires_at, revoked_at)
		VALUES (:id, :identity_id, :device_id, :user_agent, :ip, :geo_country, :access_token_id,
			:refresh_token_id, :created_at, :expires_at, :revoked_at)`

	selectSessionByIDQuery = `
		SELECT id, identity_id, device_id, user_agent, ip, geo_country, access_token_id, refresh_token_id,
			created_at, expires_at, revoked_at
		FROM sessions WHERE id = $1`

	listSessionsByIdentityIDQuery = `
		SELECT id, identity_id, device_id, user_agent, ip, geo_country, access_token_id, refresh_token_id,
			created_at, expires_at, revoked_at
		FROM sessions WHERE identity_id = $1 AND revoked_at IS NULL ORDER BY created_at ASC`

	updateSessionQuery = `UPDATE sessions SET revoked_at = :revoked_at WHERE id = :id`
)

// SessionRepository is SessionAuthenticator's durable view of active
// sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSessionByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	ListActiveSessionsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.Session, error)
	RevokeSessionRow(ctx context.Context, session *model.Session) error
}

func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	return s.exec(ctx, insertSessionQuery, session)
}

func (s *Store) GetSessionByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var out model.Session
	if err := s.get(ctx, &out, selectSessionByIDQuery, id); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListActiveSessionsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.Session, error) {
	var out []model.Session
	if err := s.list(ctx, &out, listSessionsByIdentityIDQuery, identityID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RevokeSessionRow(ctx context.Context, session *model.Session) error {
	return s.exec(ctx, updateSessionQuery, session)
}
