// Package token implements C7 TokenService: JWT minting/verification with
// keyring rotation, revocation, refresh rotation, and the authorization-code
// vault, per spec.md §4.4. Claim shape and method signatures are grounded on
// the teacher's vendored gourdiantoken package (AccessTokenClaims/
// RefreshTokenClaims, TokenRepository, hashToken-before-store), generalized
// from gourdiantoken's single HMAC/asymmetric key to the kid-indexed
// keyring spec.md §4.4 requires, and rebased from gourdiantoken's own
// TokenRepository onto this repo's store/kv.Store abstraction.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/pkg/idgen"
	"github.com/entativa/id/store/kv"
)

// Config tunes issuance/validation, with spec.md §4.4's stated defaults.
type Config struct {
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ClockSkew is the leeway applied to exp checks ("reject if exp < now -
	// clock_skew").
	ClockSkew time.Duration
	// RotateRefreshOnUse mints a fresh refresh token (blacklisting the old
	// one) on every successful refresh. Default true, per spec.md §4.4.
	RotateRefreshOnUse bool
	// RefreshGrace tolerates client retries racing a rotation by delaying
	// how soon the old refresh token's blacklist entry takes effect.
	// Default 0 ("rotate on every refresh, no grace").
	RefreshGrace time.Duration
}

// DefaultConfig matches spec.md §4.4's stated defaults.
func DefaultConfig(issuer string, audience []string) Config {
	return Config{
		Issuer:             issuer,
		Audience:           audience,
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         30 * 24 * time.Hour,
		ClockSkew:          2 * time.Minute,
		RotateRefreshOnUse: true,
	}
}

// Repository is the narrow persistence surface Service depends on.
type Repository interface {
	CreateToken(ctx context.Context, t *model.Token) error
	GetTokenByHash(ctx context.Context, hash string) (*model.Token, error)
	GetTokenByID(ctx context.Context, id uuid.UUID) (*model.Token, error)
	ListTokensByAuthCodeHash(ctx context.Context, hash string) ([]model.Token, error)
	UpdateToken(ctx context.Context, t *model.Token) error
}

// Service is C7 TokenService.
type Service struct {
	repo    Repository
	cache   kv.Store
	keyring *Keyring
	clock   clock.Clock
	cfg     Config
}

// NewService wires a Service. keyring is typically built once at process
// start via NewKeyring and shared across the application.
func NewService(repo Repository, cache kv.Store, keyring *Keyring, clk clock.Clock, cfg Config) *Service {
	return &Service{repo: repo, cache: cache, keyring: keyring, clock: clk, cfg: cfg}
}

func blacklistKey(jti string) string { return "token:blacklist:" + jti }

func rotatedKey(jti string) string { return "token:rotated:" + jti }

// blacklistAfterPrefix marks a blacklist entry that only takes effect at a
// future instant, carrying that instant as unix seconds. Used by refresh
// rotation's grace window so a client retry racing the rotation still
// succeeds until the grace elapses.
const blacklistAfterPrefix = "after:"

// IssueAccessToken mints an access JWT and its durable Token row. The row's
// id doubles as the jti, so Session can reference it directly without a
// second lookup.
func (s *Service) IssueAccessToken(ctx context.Context, identity *model.Identity, sessionID uuid.UUID, clientID *string, scope string) (signed string, row *model.Token, err error) {
	kid, priv, err := s.keyring.Signer()
	if err != nil {
		return "", nil, err
	}

	id := uuid.New()
	now := s.clock.Now()
	badge := ""
	if identity.VerificationBadge != nil {
		badge = *identity.VerificationBadge
	}

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   identity.ID.String(),
			Audience:  s.cfg.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        id.String(),
		},
		Eid:                identity.Eid,
		Email:              identity.Email,
		Verified:           identity.VerificationStatus == model.VerificationVerified,
		Status:             string(identity.Status),
		VerificationStatus: string(identity.VerificationStatus),
		VerificationBadge:  badge,
		ReputationScore:    identity.ReputationScore,
		SessionID:          sessionID.String(),
		Scope:              scope,
		TokenType:          tokenTypeAccess,
	}
	if clientID != nil {
		claims.ClientID = *clientID
	}

	jwtToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	jwtToken.Header["kid"] = kid
	signed, err = jwtToken.SignedString(priv)
	if err != nil {
		return "", nil, errs.Wrap(errs.Fatal, "sign access token", err)
	}

	row = &model.Token{
		ID:        id,
		Type:      model.TokenAccess,
		Hash:      idgen.Hash(id.String()),
		Subject:   identity.ID.String(),
		ClientID:  clientID,
		Scopes:    model.StringSlice(splitScope(scope)),
		SessionID: &sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTTL),
	}
	if err := s.repo.CreateToken(ctx, row); err != nil {
		return "", nil, err
	}
	return signed, row, nil
}

// IssueRefreshToken mints a refresh JWT carrying only identity and session
// ids, per spec.md §4.4 ("no PII"). scope is not part of the JWT itself but
// is recorded on the durable Token row so a later rotation can enforce
// §4.5's "requested scope MUST be a subset of the refresh token's original
// scope" without needing PII in the token. Interactive logins that mint no
// OAuth2 scope pass "".
func (s *Service) IssueRefreshToken(ctx context.Context, identity *model.Identity, sessionID uuid.UUID, scope string) (signed string, row *model.Token, err error) {
	kid, priv, err := s.keyring.Signer()
	if err != nil {
		return "", nil, err
	}

	id := uuid.New()
	now := s.clock.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   identity.ID.String(),
			Audience:  s.cfg.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        id.String(),
		},
		SessionID: sessionID.String(),
		TokenType: tokenTypeRefresh,
	}

	jwtToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	jwtToken.Header["kid"] = kid
	signed, err = jwtToken.SignedString(priv)
	if err != nil {
		return "", nil, errs.Wrap(errs.Fatal, "sign refresh token", err)
	}

	row = &model.Token{
		ID:        id,
		Type:      model.TokenRefresh,
		Hash:      idgen.Hash(id.String()),
		Subject:   identity.ID.String(),
		Scopes:    model.StringSlice(splitScope(scope)),
		SessionID: &sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
	if err := s.repo.CreateToken(ctx, row); err != nil {
		return "", nil, err
	}
	return signed, row, nil
}

func (s *Service) keyfunc(token *jwt.Token) (interface{}, error) {
	kidRaw, ok := token.Header["kid"]
	if !ok {
		return nil, fmt.Errorf("token missing kid header")
	}
	kid, _ := kidRaw.(string)
	pub, ok := s.keyring.Verifier(kid)
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return pub, nil
}

// VerifyAccessToken parses, validates, and checks the blacklist for an
// access JWT, per spec.md §4.4's validation rules.
func (s *Service) VerifyAccessToken(ctx context.Context, raw string) (*AccessClaims, error) {
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, s.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithLeeway(s.cfg.ClockSkew),
		jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return nil, errs.Wrap(errs.Auth, "invalid access token", err).WithCode("invalid_token")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, errs.New(errs.Auth, "wrong token type").WithCode("invalid_token")
	}
	if !audienceMatches(claims.Audience, s.cfg.Audience) {
		return nil, errs.New(errs.Auth, "audience mismatch").WithCode("invalid_token")
	}
	if err := s.checkBlacklist(ctx, claims.ID); err != nil {
		return nil, err
	}
	return &claims, nil
}

// VerifyRefreshToken is VerifyAccessToken's counterpart for refresh JWTs.
func (s *Service) VerifyRefreshToken(ctx context.Context, raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, s.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithLeeway(s.cfg.ClockSkew),
		jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return nil, errs.Wrap(errs.Auth, "invalid refresh token", err).WithCode("invalid_grant")
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, errs.New(errs.Auth, "wrong token type").WithCode("invalid_grant")
	}
	if !audienceMatches(claims.Audience, s.cfg.Audience) {
		return nil, errs.New(errs.Auth, "audience mismatch").WithCode("invalid_grant")
	}
	if err := s.checkBlacklist(ctx, claims.ID); err != nil {
		if errs.Is(err, errs.Auth) {
			s.revokeRotationSuccessor(ctx, claims.ID)
		}
		return nil, err
	}
	return &claims, nil
}

// revokeRotationSuccessor implements the replay defense of spec.md §8:
// presenting a refresh token that was already rotated away revokes the
// refresh token minted in its place, cutting the chain an attacker
// replaying a stolen token would otherwise keep alive. The access tokens
// already issued are left alone; only the rotated-in refresh credential
// is burned.
func (s *Service) revokeRotationSuccessor(ctx context.Context, oldJTI string) {
	successor, err := s.cache.Get(ctx, rotatedKey(oldJTI))
	if err != nil {
		return
	}
	_ = s.cache.Del(ctx, rotatedKey(oldJTI))
	id, err := uuid.Parse(successor)
	if err != nil {
		return
	}
	row, err := s.repo.GetTokenByID(ctx, id)
	if err != nil {
		return
	}
	ttl := row.ExpiresAt.Sub(s.clock.Now())
	if ttl < 0 {
		ttl = 0
	}
	_ = s.cache.Set(ctx, blacklistKey(successor), "refresh_replay", ttl)
	_ = s.markRevoked(ctx, id, "token_service", "refresh_replay")
}

// checkBlacklist implements spec.md §4.7's TokenService failure semantics:
// a cache miss (not found) means not blacklisted; a cache outage falls back
// to the durable store rather than failing open or closed blindly. An
// "after:" entry is a rotation-grace marker that only bites once its
// instant has passed.
func (s *Service) checkBlacklist(ctx context.Context, jti string) error {
	val, err := s.cache.Get(ctx, blacklistKey(jti))
	if err == nil {
		if ts, ok := strings.CutPrefix(val, blacklistAfterPrefix); ok {
			if sec, perr := strconv.ParseInt(ts, 10, 64); perr == nil && s.clock.Now().Before(time.Unix(sec, 0)) {
				return nil
			}
		}
		return errs.New(errs.Auth, "token has been revoked").WithCode("invalid_token")
	}
	if err == kv.ErrNotFound {
		return nil
	}
	// Cache unreachable: fall back to the durable row.
	id, parseErr := uuid.Parse(jti)
	if parseErr != nil {
		return errs.Wrap(errs.Transient, "blacklist check unavailable", err)
	}
	row, getErr := s.repo.GetTokenByID(ctx, id)
	if getErr != nil {
		return errs.Wrap(errs.Transient, "blacklist check unavailable", err)
	}
	if row.IsRevoked {
		return errs.New(errs.Auth, "token has been revoked").WithCode("invalid_token")
	}
	return nil
}

// RevokeSession blacklists both of a session's jtis for a TTL equal to the
// remaining lifetime of the refresh token, and marks both durable Token
// rows revoked, per spec.md §4.4.
func (s *Service) RevokeSession(ctx context.Context, session *model.Session, revokedBy, reason string) error {
	now := s.clock.Now()
	ttl := session.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	if err := s.cache.Set(ctx, blacklistKey(session.AccessTokenID.String()), reason, ttl); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, blacklistKey(session.RefreshTokenID.String()), reason, ttl); err != nil {
		return err
	}
	for _, id := range []uuid.UUID{session.AccessTokenID, session.RefreshTokenID} {
		if err := s.markRevoked(ctx, id, revokedBy, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) markRevoked(ctx context.Context, id uuid.UUID, revokedBy, reason string) error {
	row, err := s.repo.GetTokenByID(ctx, id)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	row.IsRevoked = true
	row.RevokedBy = &revokedBy
	row.RevokedAt = &now
	row.RevokedReason = &reason
	return s.repo.UpdateToken(ctx, row)
}

// RotateRefreshToken mints a new access token and, if configured, a new
// refresh token, blacklisting the old refresh jti (after RefreshGrace),
// per spec.md §4.4's refresh-rotation rules.
func (s *Service) RotateRefreshToken(ctx context.Context, identity *model.Identity, oldClaims *RefreshClaims, clientID *string, scope string) (newAccess, newRefresh string, err error) {
	sessionID, err := uuid.Parse(oldClaims.SessionID)
	if err != nil {
		return "", "", errs.Wrap(errs.Auth, "malformed session id in refresh token", err).WithCode("invalid_grant")
	}

	newAccess, _, err = s.IssueAccessToken(ctx, identity, sessionID, clientID, scope)
	if err != nil {
		return "", "", err
	}

	if !s.cfg.RotateRefreshOnUse {
		return newAccess, "", nil
	}

	newRefresh, newRow, err := s.IssueRefreshToken(ctx, identity, sessionID, scope)
	if err != nil {
		return "", "", err
	}

	remaining := oldClaims.ExpiresAt.Time.Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	value := "rotated"
	if s.cfg.RefreshGrace > 0 {
		value = blacklistAfterPrefix + strconv.FormatInt(s.clock.Now().Add(s.cfg.RefreshGrace).Unix(), 10)
	}
	if err := s.cache.Set(ctx, blacklistKey(oldClaims.ID), value, remaining); err != nil {
		return "", "", err
	}
	// Remember which refresh token replaced this one so a later replay of
	// the old token can burn its successor (spec.md §8's replay defense).
	_ = s.cache.Set(ctx, rotatedKey(oldClaims.ID), newRow.ID.String(), remaining)
	if oldID, perr := uuid.Parse(oldClaims.ID); perr == nil {
		_ = s.markRevoked(ctx, oldID, "token_service", "rotated")
	}

	return newAccess, newRefresh, nil
}

// AuthCodeGrant is what an authorization code is bound to, per spec.md §3's
// AuthorizationCode invariant.
type AuthCodeGrant struct {
	ClientID        string    `json:"client_id"`
	UserID          uuid.UUID `json:"user_id"`
	RedirectURI     string    `json:"redirect_uri"`
	Scopes          []string  `json:"scopes"`
	CodeChallenge   string    `json:"code_challenge,omitempty"`
	ChallengeMethod string    `json:"challenge_method,omitempty"`
}

// AuthCodeTTL is spec.md §4.4's stated authorization-code lifetime ceiling.
const AuthCodeTTL = 10 * time.Minute

// IssueAuthorizationCode stores grant under a hash of a freshly generated
// opaque code, per spec.md §4.4's "32-char opaque, stored by hash".
func (s *Service) IssueAuthorizationCode(ctx context.Context, grant AuthCodeGrant) (code string, err error) {
	code, err = idgen.AuthorizationCode()
	if err != nil {
		return "", errs.Wrap(errs.Fatal, "generate authorization code", err)
	}
	payload, err := json.Marshal(grant)
	if err != nil {
		return "", errs.Wrap(errs.Fatal, "encode authorization code grant", err)
	}
	hash := idgen.Hash(code)
	if err := s.cache.Set(ctx, "authcode:"+hash, string(payload), AuthCodeTTL); err != nil {
		return "", err
	}
	return code, nil
}

// ConsumeAuthorizationCode atomically checks and marks a code used, per
// spec.md §4.4's "atomic check-and-mark-used". On re-use, every token row
// minted from the same code (tracked via Token.AuthCodeHash) is revoked,
// implementing the replay-defense cascade.
func (s *Service) ConsumeAuthorizationCode(ctx context.Context, code string, revokedBy string) (*AuthCodeGrant, string, error) {
	hash := idgen.Hash(code)

	// The consumed marker is claimed before the grant is read: the marker,
	// not the grant's presence, is what decides the race, so a replay
	// always lands in the cascade branch even after the winner deleted the
	// grant payload. The marker outlives the code's own TTL so late
	// replays are still caught.
	consumedKey := "authcode:consumed:" + hash
	firstUse, err := s.cache.SetNX(ctx, consumedKey, "1", 24*time.Hour)
	if err != nil {
		return nil, "", err
	}
	if !firstUse {
		tokens, err := s.repo.ListTokensByAuthCodeHash(ctx, hash)
		if err != nil {
			return nil, "", err
		}
		for _, t := range tokens {
			_ = s.markRevoked(ctx, t.ID, revokedBy, "authorization_code_reused")
			if ttl := t.ExpiresAt.Sub(s.clock.Now()); ttl > 0 {
				_ = s.cache.Set(ctx, blacklistKey(t.ID.String()), "authorization_code_reused", ttl)
			}
		}
		return nil, "", errs.New(errs.Auth, "authorization code already used").WithCode("invalid_grant")
	}

	raw, err := s.cache.Get(ctx, "authcode:"+hash)
	if err == kv.ErrNotFound {
		return nil, "", errs.New(errs.Auth, "unknown or expired authorization code").WithCode("invalid_grant")
	} else if err != nil {
		return nil, "", err
	}

	var grant AuthCodeGrant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return nil, "", errs.Wrap(errs.Fatal, "decode authorization code grant", err)
	}
	_ = s.cache.Del(ctx, "authcode:"+hash)
	return &grant, hash, nil
}

// JWKS exposes the keyring's public half, the Go-native equivalent of the
// /oauth2/jwks wire endpoint named in spec.md §6.
func (s *Service) JWKS() (*jose.JSONWebKeySet, error) {
	return s.keyring.JWKS(), nil
}

// RotateSigningKey generates a new signing key, per spec.md §5's rotation
// requirement. The embedding application calls this explicitly; nothing
// runs it automatically (Design Notes' "no implicit goroutines").
func (s *Service) RotateSigningKey(ctx context.Context) (kid string, err error) {
	return s.keyring.RotateSigningKey()
}

// CleanupExpired prunes signing keys created more than a week ago, retired
// or not, keeping the newest key and the current signer. It is
// caller-invoked rather than a background goroutine, per spec.md §9, and
// does not remove token records.
func (s *Service) CleanupExpired(ctx context.Context) error {
	s.keyring.PruneOlderThan(s.clock.Now().Add(-7 * 24 * time.Hour))
	return nil
}

// IssueClientCredentialsToken mints an access JWT whose sub is the client
// itself, per spec.md §4.5's client_credentials grant ("returns an access
// token with sub = client_id"). There is no identity, session, or PII
// behind this credential.
func (s *Service) IssueClientCredentialsToken(ctx context.Context, clientID, scope string) (signed string, row *model.Token, err error) {
	kid, priv, err := s.keyring.Signer()
	if err != nil {
		return "", nil, err
	}

	id := uuid.New()
	now := s.clock.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   clientID,
			Audience:  s.cfg.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        id.String(),
		},
		ClientID:  clientID,
		Scope:     scope,
		TokenType: tokenTypeAccess,
	}

	jwtToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	jwtToken.Header["kid"] = kid
	signed, err = jwtToken.SignedString(priv)
	if err != nil {
		return "", nil, errs.Wrap(errs.Fatal, "sign client credentials token", err)
	}

	row = &model.Token{
		ID:        id,
		Type:      model.TokenAccess,
		Hash:      idgen.Hash(id.String()),
		Subject:   clientID,
		ClientID:  &clientID,
		Scopes:    model.StringSlice(splitScope(scope)),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTTL),
	}
	if err := s.repo.CreateToken(ctx, row); err != nil {
		return "", nil, err
	}
	return signed, row, nil
}

// IssueAPIKey mints a long-lived API key for subject: an 8-character
// identification prefix kept in plaintext on the row, plus a secret
// persisted only as a hash, per spec.md §6's API key format ("prefix
// (first 8 chars visible for identification) + secret (hashed at
// rest)"). The caller sees "<prefix>.<secret>" exactly once. expiresIn
// <= 0 falls back to the refresh-token lifetime.
func (s *Service) IssueAPIKey(ctx context.Context, subject string, scopes []string, expiresIn time.Duration) (plaintext string, row *model.Token, err error) {
	prefix, secret, err := idgen.APIKey()
	if err != nil {
		return "", nil, errs.Wrap(errs.Fatal, "generate api key", err)
	}
	if expiresIn <= 0 {
		expiresIn = s.cfg.RefreshTTL
	}
	plaintext = prefix + "." + secret

	now := s.clock.Now()
	row = &model.Token{
		ID:        uuid.New(),
		Type:      model.TokenAPIKey,
		Hash:      idgen.Hash(secret),
		Prefix:    prefix,
		Subject:   subject,
		Scopes:    model.StringSlice(scopes),
		IssuedAt:  now,
		ExpiresAt: now.Add(expiresIn),
	}
	if err := s.repo.CreateToken(ctx, row); err != nil {
		return "", nil, err
	}
	return plaintext, row, nil
}

// VerifyAPIKey resolves a presented "<prefix>.<secret>" API key to its
// durable row, checking expiry and revocation, and stamps last_used_at /
// usage_count. Only the secret half is hashed for the lookup; the prefix
// exists for identification and must match the stored one.
func (s *Service) VerifyAPIKey(ctx context.Context, plaintext string) (*model.Token, error) {
	prefix, secret, found := strings.Cut(plaintext, ".")
	if !found {
		return nil, errs.New(errs.Auth, "malformed api key").WithCode("invalid_token")
	}
	row, err := s.repo.GetTokenByHash(ctx, idgen.Hash(secret))
	if err != nil {
		return nil, errs.New(errs.Auth, "unknown api key").WithCode("invalid_token")
	}
	if row.Prefix != prefix {
		return nil, errs.New(errs.Auth, "unknown api key").WithCode("invalid_token")
	}
	if row.Type != model.TokenAPIKey {
		return nil, errs.New(errs.Auth, "wrong token type").WithCode("invalid_token")
	}
	now := s.clock.Now()
	if row.IsRevoked || now.After(row.ExpiresAt) {
		return nil, errs.New(errs.Auth, "api key expired or revoked").WithCode("invalid_token")
	}
	row.LastUsedAt = &now
	row.UsageCount++
	if err := s.repo.UpdateToken(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// BindAuthCode stamps the durable Token row for tokenID with the
// authorization code hash it was minted from, so a later code-reuse
// detection (ConsumeAuthorizationCode's ListTokensByAuthCodeHash scan) can
// find and revoke it, per spec.md §3's replay-defense invariant.
func (s *Service) BindAuthCode(ctx context.Context, tokenID uuid.UUID, authCodeHash string) error {
	row, err := s.repo.GetTokenByID(ctx, tokenID)
	if err != nil {
		return err
	}
	row.AuthCodeHash = &authCodeHash
	return s.repo.UpdateToken(ctx, row)
}

// LookupToken resolves a jti (as carried in a JWT's "jti"/"id" claim) to its
// durable Token row, used by OAuth2Engine's refresh-token grant to read the
// original scope a refresh token was issued with.
func (s *Service) LookupToken(ctx context.Context, jti string) (*model.Token, error) {
	id, err := uuid.Parse(jti)
	if err != nil {
		return nil, errs.Wrap(errs.Auth, "malformed token id", err).WithCode("invalid_grant")
	}
	return s.repo.GetTokenByID(ctx, id)
}

// IntrospectionResult is the wire-shaped claim subset spec.md §6 names for
// the /oauth2/introspect endpoint.
type IntrospectionResult struct {
	Active    bool
	Subject   string
	ClientID  string
	Scope     string
	TokenType string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Introspect reports whether raw is a currently valid access or refresh
// token and, if so, the claim subset above — "Reveals nothing else" per
// spec.md §4.5. A verification failure of either shape simply yields
// {Active: false}, never an error: introspection of a bad token is not
// itself a fault.
func (s *Service) Introspect(ctx context.Context, raw string) IntrospectionResult {
	if claims, err := s.VerifyAccessToken(ctx, raw); err == nil {
		return IntrospectionResult{
			Active:    true,
			Subject:   claims.Subject,
			ClientID:  claims.ClientID,
			Scope:     claims.Scope,
			TokenType: tokenTypeAccess,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}
	}
	if claims, err := s.VerifyRefreshToken(ctx, raw); err == nil {
		return IntrospectionResult{
			Active:    true,
			Subject:   claims.Subject,
			TokenType: tokenTypeRefresh,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}
	}
	return IntrospectionResult{Active: false}
}

// RevokeRaw blacklists the jti carried by a signed access or refresh token
// and marks its durable row revoked, regardless of whether the token has
// already expired. Per RFC 7009 (spec.md §4.5: "idempotent — always reports
// success"), a token this keyring never signed is simply not an error — it
// was never going to validate anyway.
func (s *Service) RevokeRaw(ctx context.Context, raw, revokedBy string) error {
	var claims peekClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, s.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil
	}

	ttl := claims.ExpiresAt.Time.Sub(s.clock.Now())
	if ttl < 0 {
		ttl = 0
	}
	if err := s.cache.Set(ctx, blacklistKey(claims.ID), "revoked", ttl); err != nil {
		return err
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil
	}
	_ = s.markRevoked(ctx, id, revokedBy, "revoked_via_"+claims.TokenType)
	return nil
}

func audienceMatches(tokenAud, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(tokenAud))
	for _, a := range tokenAud {
		set[a] = struct{}{}
	}
	for _, want := range expected {
		if _, ok := set[want]; ok {
			return true
		}
	}
	return false
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
