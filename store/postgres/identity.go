package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
)

const (
	insertIdentityQuery = `
		INSERT INTO identities (id, eid, email, phone, password_hash, status, verification_status,
			verification_badge, reputation_score, failed_login_attempts, locked_until, last_login_at,
			created_at, updated_at)
		VALUES (:id, :eid, :email, :phone, :password_hash, :status, :verification_status,
			:verification_badge, :reputation_score, :failed_login_attempts, :locked_until, :last_login_at,
			:created_at, :updated_at)`

	selectIdentityByIDQuery = `
		SELECT id, eid, email, phone, password_hash, status, verification_status, verification_badge,
			reputation_score, failed_login_attempts, locked_until, last_login_at, created_at, updated_at
		FROM identities WHERE id = $1`

	selectIdentityByEidQuery = `
		SELECT id, eid, email, phone, password_hash, status, verification_status, verification_badge,
			reputation_score, failed_login_attempts, locked_until, last_login_at, created_at, updated_at
		FROM identities WHERE eid = $1`

	selectIdentityByEmailQuery = `
		SELECT id, eid, email, phone, password_hash, status, verification_status, verification_badge,
			reputation_score, failed_login_attempts, locked_until, last_login_at, created_at, updated_at
		FROM identities WHERE email = $1`

	updateIdentityQuery = `
		UPDATE identities
		SET eid = :eid, email = :email, phone = :phone, password_hash = :password_hash, status = :status,
			verification_status = :verification_status, verification_badge = :verification_badge,
			reputation_score = :reputation_score, failed_login_attempts = :failed_login_attempts,
			locked_until = :locked_until, last_login_at = :last_login_at, updated_at = :updated_at
		WHERE id = :id`

	insertProfileQuery = `
		INSERT INTO profiles (id, identity_id, display_name, bio, avatar_url, display_name_visibility,
			bio_visibility, created_at, updated_at)
		VALUES (:id, :identity_id, :display_name, :bio, :avatar_url, :display_name_visibility,
			:bio_visibility, :created_at, :updated_at)`

	selectProfileByIdentityIDQuery = `
		SELECT id, identity_id, display_name, bio, avatar_url, display_name_visibility, bio_visibility,
			created_at, updated_at
		FROM profiles WHERE identity_id = $1`

	updateProfileQuery = `
		UPDATE profiles
		SET display_name = :display_name, bio = :bio, avatar_url = :avatar_url,
			display_name_visibility = :display_name_visibility, bio_visibility = :bio_visibility,
			updated_at = :updated_at
		WHERE identity_id = :identity_id`
)

// IdentityRepository is the narrow persistence interface domain/identity and
// domain/session depend on.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*model.Identity, error)
	GetIdentityByEid(ctx context.Context, eid string) (*model.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error)
	UpdateIdentity(ctx context.Context, identity *model.Identity) error
	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfileByIdentityID(ctx context.Context, identityID uuid.UUID) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

func (s *Store) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	return s.exec(ctx, insertIdentityQuery, identity)
}

func (s *Store) GetIdentityByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	var out model.Identity
	if err := s.get(ctx, &out, selectIdentityByIDQuery, id); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetIdentityByEid(ctx context.Context, eid string) (*model.Identity, error) {
	var out model.Identity
	if err := s.get(ctx, &out, selectIdentityByEidQuery, eid); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	var out model.Identity
	if err := s.get(ctx, &out, selectIdentityByEmailQuery, email); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateIdentity(ctx context.Context, identity *model.Identity) error {
	return s.exec(ctx, updateIdentityQuery, identity)
}

func (s *Store) CreateProfile(ctx context.Context, profile *model.Profile) error {
	return s.exec(ctx, insertProfileQuery, profile)
}

func (s *Store) GetProfileByIdentityID(ctx context.Context, identityID uuid.UUID) (*model.Profile, error) {
	var out model.Profile
	if err := s.get(ctx, &out, selectProfileByIdentityIDQuery, identityID); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	return s.exec(ctx, updateProfileQuery, profile)
}
