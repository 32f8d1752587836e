package postgres

// Schema holds the CREATE TABLE statements for every entity in spec.md §3.
// Per SPEC_FULL.md §10, DB schema DDL *management* (migrations, a
// migration tool) is out of scope — these strings exist only so tests can
// stand up a throwaway Postgres schema (e.g. via a dockertest/sqlite-less
// fixture) without a separate migration toolchain.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id UUID PRIMARY KEY,
		eid TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT,
		password_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		verification_status TEXT NOT NULL DEFAULT 'none',
		verification_badge TEXT,
		reputation_score INT NOT NULL DEFAULT 0,
		failed_login_attempts INT NOT NULL DEFAULT 0,
		locked_until TIMESTAMPTZ,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		identity_id UUID UNIQUE NOT NULL REFERENCES identities(id),
		display_name TEXT NOT NULL DEFAULT '',
		bio TEXT,
		avatar_url TEXT,
		display_name_visibility TEXT NOT NULL DEFAULT 'public',
		bio_visibility TEXT NOT NULL DEFAULT 'public',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reserved_handles (
		handle TEXT PRIMARY KEY,
		releasable BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS protected_entities (
		id UUID PRIMARY KEY,
		canonical_handle TEXT UNIQUE NOT NULL,
		aliases JSONB NOT NULL DEFAULT '[]',
		category TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservation_requests (
		id UUID PRIMARY KEY,
		identity_id UUID NOT NULL REFERENCES identities(id),
		requested_handle TEXT NOT NULL,
		justification TEXT NOT NULL DEFAULT '',
		evidence_uris JSONB NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer TEXT,
		rejection_reason TEXT,
		appealed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		decided_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS reservation_requests_one_pending_per_handle
		ON reservation_requests (identity_id, requested_handle) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS handle_change_history (
		id UUID PRIMARY KEY,
		identity_id UUID NOT NULL REFERENCES identities(id),
		old_handle TEXT NOT NULL,
		new_handle TEXT NOT NULL,
		reason TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		id UUID PRIMARY KEY,
		client_id TEXT UNIQUE NOT NULL,
		client_secret_hash TEXT,
		redirect_uris JSONB NOT NULL DEFAULT '[]',
		wildcard_redirect BOOLEAN NOT NULL DEFAULT false,
		allowed_scopes JSONB NOT NULL DEFAULT '[]',
		grant_types JSONB NOT NULL DEFAULT '[]',
		pkce_policy TEXT NOT NULL DEFAULT 'optional',
		access_token_ttl BIGINT NOT NULL,
		refresh_token_ttl BIGINT NOT NULL,
		trusted BOOLEAN NOT NULL DEFAULT false,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		hash TEXT UNIQUE NOT NULL,
		prefix TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL,
		client_id TEXT,
		scopes JSONB NOT NULL DEFAULT '[]',
		session_id UUID,
		auth_code_hash TEXT,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		last_used_at TIMESTAMPTZ,
		usage_count INT NOT NULL DEFAULT 0,
		is_revoked BOOLEAN NOT NULL DEFAULT false,
		revoked_by TEXT,
		revoked_at TIMESTAMPTZ,
		revoked_reason TEXT,
		device_id TEXT,
		security_level INT NOT NULL DEFAULT 0,
		risk_score INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		identity_id UUID NOT NULL REFERENCES identities(id),
		device_id TEXT,
		user_agent TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		geo_country TEXT,
		access_token_id UUID NOT NULL,
		refresh_token_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS mfa_methods (
		id UUID PRIMARY KEY,
		identity_id UUID NOT NULL REFERENCES identities(id),
		kind TEXT NOT NULL,
		secret_enc TEXT NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT false,
		is_primary BOOLEAN NOT NULL DEFAULT false,
		priority INT NOT NULL DEFAULT 0,
		usage_count INT NOT NULL DEFAULT 0,
		failure_count INT NOT NULL DEFAULT 0,
		last_used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		identity_id UUID,
		actor_id UUID,
		action TEXT NOT NULL,
		details JSONB NOT NULL DEFAULT '{}',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		lawful_basis TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL
	)`,
}
