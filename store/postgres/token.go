package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
)

const (
	insertTokenQuery = `
		INSERT INTO tokens (id, type, hash, prefix, subject, client_id, scopes, session_id, auth_code_hash,
			issued_at, expires_at, last_used_at, usage_count, is_revoked, revoked_by, revoked_at,
			revoked_reason, device_id, security_level, risk_score)
		VALUES (:id, :type, :hash, :prefix, :subject, :client_id, :scopes, :session_id, :auth_code_hash,
			:issued_at, :expires_at, :last_used_at, :usage_count, :is_revoked, :revoked_by, :revoked_at,
			:revoked_reason, :device_id, :security_level, :risk_score)`

	selectTokenByHashQuery = `
		SELECT id, type, hash, prefix, subject, client_id, scopes, session_id, auth_code_hash, issued_at,
			expires_at, last_used_at, usage_count, is_revoked, revoked_by, revoked_at, revoked_reason,
			device_id, security_level, risk_score
		FROM tokens WHERE hash = $1`

	selectTokenByIDQuery = `
		SELECT id, type, hash, prefix, subject, client_id, scopes, session_id, auth_code_hash, issued_at,
			expires_at, last_used_at, usage_count, is_revoked, revoked_by, revoked_at, revoked_reason,
			device_id, security_level, risk_score
		FROM tokens WHERE id = $1`

	selectTokensByAuthCodeHashQuery = `
		SELECT id, type, hash, prefix, subject, client_id, scopes, session_id, auth_code_hash, issued_at,
			expires_at, last_used_at, usage_count, is_revoked, revoked_by, revoked_at, revoked_reason,
			device_id, security_level, risk_score
		FROM tokens WHERE auth_code_hash = $1`

	selectTokensBySessionIDQuery = `
		SELECT id, type, hash, prefix, subject, client_id, scopes, session_id, auth_code_hash, issued_at,
			expires_at, last_used_at, usage_count, is_revoked, revoked_by, revoked_at, revoked_reason,
			device_id, security_level, risk_score
		FROM tokens WHERE session_id = $1`

	updateTokenQuery = `
		UPDATE tokens
		SET last_used_at = :last_used_at, usage_count = :usage_count, is_revoked = :is_revoked,
			revoked_by = :revoked_by, revoked_at = :revoked_at, revoked_reason = :revoked_reason
		WHERE id = :id`
)

// TokenRepository is TokenService's durable record of every issued
// credential, per spec.md §3's Token entity.
type TokenRepository interface {
	CreateToken(ctx context.Context, token *model.Token) error
	GetTokenByHash(ctx context.Context, hash string) (*model.Token, error)
	GetTokenByID(ctx context.Context, id uuid.UUID) (*model.Token, error)
	ListTokensByAuthCodeHash(ctx context.Context, hash string) ([]model.Token, error)
	ListTokensBySessionID(ctx context.Context, sessionID uuid.UUID) ([]model.Token, error)
	UpdateToken(ctx context.Context, token *model.Token) error
}

func (s *Store) CreateToken(ctx context.Context, token *model.Token) error {
	return s.exec(ctx, insertTokenQuery, token)
}

func (s *Store) GetTokenByHash(ctx context.Context, hash string) (*model.Token, error) {
	var out model.Token
	if err := s.get(ctx, &out, selectTokenByHashQuery, hash); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetTokenByID(ctx context.Context, id uuid.UUID) (*model.Token, error) {
	var out model.Token
	if err := s.get(ctx, &out, selectTokenByIDQuery, id); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListTokensByAuthCodeHash(ctx context.Context, hash string) ([]model.Token, error) {
	var out []model.Token
	if err := s.list(ctx, &out, selectTokensByAuthCodeHashQuery, hash); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListTokensBySessionID(ctx context.Context, sessionID uuid.UUID) ([]model.Token, error) {
	var out []model.Token
	if err := s.list(ctx, &out, selectTokensBySessionIDQuery, sessionID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateToken(ctx context.Context, token *model.Token) error {
	return s.exec(ctx, updateTokenQuery, token)
}
