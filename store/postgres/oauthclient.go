package postgres

import (
	"context"

	"github.com/entativa/id/domain/model"
)

const (
	selectClientByClientIDQuery = `
		SELECT id, client_id, client_secret_hash, redirect_uris, wildcard_redirect, allowed_scopes,
			grant_types, pkce_policy, access_token_ttl, refresh_token_ttl, trusted, status, created_at
		FROM oauth_clients WHERE client_id = $1`

	insertClientQuery = `
		INSERT INTO oauth_clients (id, client_id, client_secret_hash, redirect_uris, wildcard_redirect,
			allowed_scopes, grant_types, pkce_policy, access_token_ttl, refresh_token_ttl, trusted, status,
			created_at)
		VALUES (:id, :client_id, :client_secret_hash, :redirect_uris, :wildcard_redirect,
			:allowed_scopes, :grant_types, :pkce_policy, :access_token_ttl, :refresh_token_ttl, :trusted,
			:status, :created_at)`
)

// OAuthClientRepository is OAuth2Engine's view of registered clients.
type OAuthClientRepository interface {
	GetClientByClientID(ctx context.Context, clientID string) (*model.OAuthClient, error)
	CreateClient(ctx context.Context, client *model.OAuthClient) error
}

func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (*model.OAuthClient, error) {
	var out model.OAuthClient
	if err := s.get(ctx, &out, selectClientByClientIDQuery, clientID); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) CreateClient(ctx context.Context, client *model.OAuthClient) error {
	return s.exec(ctx, insertClientQuery, client)
}
