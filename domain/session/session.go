// Package session implements C6 SessionAuthenticator: primary-credential
// verification, lockout enforcement, session issuance/enumeration/
// revocation, and session-cap eviction, per spec.md §4.3. Grounded on the
// teacher's auth domain (services/gateway/services/auth/domain/auth.go's
// authManager, and its loginLogic.go call sequence: look up by email,
// bcrypt-compare, mint token, cache it), generalized from HS256/single
// access token to TokenService's RS256 access+refresh pair.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/identity"
	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

// Config holds SessionAuthenticator's tunables.
type Config struct {
	// MaxSessionsPerIdentity evicts the oldest active session once a new
	// login would exceed this count. 0 means unlimited.
	MaxSessionsPerIdentity int
}

func DefaultConfig() Config {
	return Config{MaxSessionsPerIdentity: 5}
}

// Repository is SessionAuthenticator's durable persistence dependency.
type Repository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSessionByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	ListActiveSessionsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.Session, error)
	RevokeSessionRow(ctx context.Context, s *model.Session) error
}

// Geo is the coarse geolocation SessionAuthenticator records alongside a
// new session, per spec.md §4.3 ("record... coarse geolocation (opaque
// provider)").
type Geo struct {
	Country string
}

// GeoLookup resolves an IP to a Geo. Entativa ID core ships only NoopGeoLookup;
// downstream delivery channels (ASN/IP databases, GeoIP services) are the
// embedding application's responsibility, per spec.md's "opaque
// geolocation provider" carve-out.
type GeoLookup func(ip string) (Geo, error)

// NoopGeoLookup always returns an empty Geo.
func NoopGeoLookup(ip string) (Geo, error) { return Geo{}, nil }

// TokenIssuer is the subset of domain/token.Service SessionAuthenticator
// depends on.
type TokenIssuer interface {
	IssueAccessToken(ctx context.Context, identity *model.Identity, sessionID uuid.UUID, clientID *string, scope string) (string, *model.Token, error)
	IssueRefreshToken(ctx context.Context, identity *model.Identity, sessionID uuid.UUID, scope string) (string, *model.Token, error)
	RevokeSession(ctx context.Context, session *model.Session, revokedBy, reason string) error
}

// Authenticator is C6 SessionAuthenticator.
type Authenticator struct {
	repo       Repository
	identities *identity.Manager
	tokens     TokenIssuer
	cache      kv.Store
	clock      clock.Clock
	cfg        Config
	geo        GeoLookup
}

func NewAuthenticator(repo Repository, identities *identity.Manager, tokens TokenIssuer, cache kv.Store, clk clock.Clock, cfg Config, geo GeoLookup) *Authenticator {
	if geo == nil {
		geo = NoopGeoLookup
	}
	return &Authenticator{repo: repo, identities: identities, tokens: tokens, cache: cache, clock: clk, cfg: cfg, geo: geo}
}

// LoginParams carries the request-scoped metadata a new session is bound
// to. Identifier is the login principal: an eid, or the account email.
type LoginParams struct {
	Identifier string
	Password   string
	DeviceID   *string
	UserAgent  string
	IP         string
}

// AuthenticatedSession is what Login returns: the new session row plus its
// two signed tokens.
type AuthenticatedSession struct {
	Session      *model.Session
	AccessToken  string
	RefreshToken string
}

func sessionCacheKey(id uuid.UUID) string { return "session:" + id.String() }

// Login verifies credentials, enforces lockout, and on success mints a
// fresh session with its access/refresh token pair, per spec.md §4.3.
func (a *Authenticator) Login(ctx context.Context, p LoginParams) (*AuthenticatedSession, error) {
	ident, err := a.lookup(ctx, p.Identifier)
	if err != nil {
		// Never reveal whether the account exists, per spec.md §4.7.
		return nil, errs.New(errs.Auth, "invalid credentials").WithCode("invalid_grant")
	}

	if a.identities.IsLocked(ident) {
		return nil, errs.New(errs.Auth, "account temporarily locked").WithCode("invalid_grant")
	}

	if !a.identities.VerifyPassword(ident, p.Password) {
		if err := a.identities.RecordFailedLogin(ctx, ident); err != nil {
			return nil, err
		}
		return nil, errs.New(errs.Auth, "invalid credentials").WithCode("invalid_grant")
	}

	if err := a.identities.ResetFailedLogins(ctx, ident); err != nil {
		return nil, err
	}

	geo, _ := a.geo(p.IP)

	if err := a.enforceSessionCap(ctx, ident.ID); err != nil {
		return nil, err
	}

	sessionID := uuid.New()
	accessToken, accessRow, err := a.tokens.IssueAccessToken(ctx, ident, sessionID, nil, "")
	if err != nil {
		return nil, err
	}
	refreshToken, refreshRow, err := a.tokens.IssueRefreshToken(ctx, ident, sessionID, "")
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	var geoCountry *string
	if geo.Country != "" {
		geoCountry = &geo.Country
	}
	sess := &model.Session{
		ID:             sessionID,
		IdentityID:     ident.ID,
		DeviceID:       p.DeviceID,
		UserAgent:      p.UserAgent,
		IP:             p.IP,
		GeoCountry:     geoCountry,
		AccessTokenID:  accessRow.ID,
		RefreshTokenID: refreshRow.ID,
		CreatedAt:      now,
		ExpiresAt:      refreshRow.ExpiresAt,
	}
	if err := a.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	// Cache TTL tracks the access token, not the session row: the cache
	// entry is only a projection of the durable row; only Login writes it,
	// and nothing re-warms it once it expires (spec.md §4.3).
	if err := a.cache.Set(ctx, sessionCacheKey(sessionID), ident.ID.String(), accessRow.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}

	return &AuthenticatedSession{Session: sess, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// lookup resolves the login principal: an eid first, then the account
// email.
func (a *Authenticator) lookup(ctx context.Context, identifier string) (*model.Identity, error) {
	if ident, err := a.identities.GetByEid(ctx, identifier); err == nil {
		return ident, nil
	}
	return a.identities.GetByEmail(ctx, identifier)
}

// enforceSessionCap evicts the oldest active session once a new login
// would exceed MaxSessionsPerIdentity, per SPEC_FULL.md §4.3's supplemented
// eviction rule.
func (a *Authenticator) enforceSessionCap(ctx context.Context, identityID uuid.UUID) error {
	if a.cfg.MaxSessionsPerIdentity <= 0 {
		return nil
	}
	active, err := a.repo.ListActiveSessionsByIdentityID(ctx, identityID)
	if err != nil {
		return err
	}
	if len(active) < a.cfg.MaxSessionsPerIdentity {
		return nil
	}
	oldest := active[0]
	for _, s := range active[1:] {
		if s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	return a.RevokeSession(ctx, oldest.ID, "session_cap_exceeded")
}

// ListSessions returns every active session for identityID.
func (a *Authenticator) ListSessions(ctx context.Context, identityID uuid.UUID) ([]model.Session, error) {
	return a.repo.ListActiveSessionsByIdentityID(ctx, identityID)
}

// RevokeSession revokes a single session's tokens and marks the row
// revoked.
func (a *Authenticator) RevokeSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	sess, err := a.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := a.tokens.RevokeSession(ctx, sess, "session_authenticator", reason); err != nil {
		return err
	}
	now := a.clock.Now()
	sess.RevokedAt = &now
	if err := a.repo.RevokeSessionRow(ctx, sess); err != nil {
		return err
	}
	return a.cache.Del(ctx, sessionCacheKey(sessionID))
}

// RevokeAllSessions revokes every active session for identityID, per
// spec.md §4.4's "revoking all tokens for an identity iterates the session
// index and blacklists each".
func (a *Authenticator) RevokeAllSessions(ctx context.Context, identityID uuid.UUID, reason string) error {
	active, err := a.repo.ListActiveSessionsByIdentityID(ctx, identityID)
	if err != nil {
		return err
	}
	for _, s := range active {
		if err := a.RevokeSession(ctx, s.ID, reason); err != nil {
			return err
		}
	}
	return nil
}

// Refresh rotates a session's tokens from a verified refresh claim. The
// caller (OAuth2Engine or an equivalent surface) is responsible for
// verifying the incoming refresh JWT via TokenService before calling this.
func (a *Authenticator) Refresh(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	sess, err := a.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RevokedAt != nil {
		return nil, errs.New(errs.Auth, "session has been revoked").WithCode("invalid_grant")
	}
	if a.clock.Now().After(sess.ExpiresAt) {
		return nil, errs.New(errs.Auth, "session has expired").WithCode("invalid_grant")
	}
	return sess, nil
}
