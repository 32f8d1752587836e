package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

type fakeRepo struct {
	byID   map[uuid.UUID]*model.Token
	byHash map[string]*model.Token
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]*model.Token), byHash: make(map[string]*model.Token)}
}

func (r *fakeRepo) CreateToken(ctx context.Context, t *model.Token) error {
	cp := *t
	r.byID[t.ID] = &cp
	r.byHash[t.Hash] = &cp
	return nil
}
func (r *fakeRepo) GetTokenByHash(ctx context.Context, hash string) (*model.Token, error) {
	t, ok := r.byHash[hash]
	if !ok {
		return nil, errs.New(errs.Input, "token not found")
	}
	return t, nil
}
func (r *fakeRepo) GetTokenByID(ctx context.Context, id uuid.UUID) (*model.Token, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, errs.New(errs.Input, "token not found")
	}
	return t, nil
}
func (r *fakeRepo) ListTokensByAuthCodeHash(ctx context.Context, hash string) ([]model.Token, error) {
	var out []model.Token
	for _, t := range r.byID {
		if t.AuthCodeHash != nil && *t.AuthCodeHash == hash {
			out = append(out, *t)
		}
	}
	return out, nil
}
func (r *fakeRepo) UpdateToken(ctx context.Context, t *model.Token) error {
	cp := *t
	r.byID[t.ID] = &cp
	r.byHash[t.Hash] = &cp
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *clock.Frozen) {
	t.Helper()
	frozen := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	keyring, err := NewKeyring()
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	repo := newFakeRepo()
	mem := kv.NewMemory(frozen.Now)
	svc := NewService(repo, mem, keyring, frozen, DefaultConfig("https://id.entativa.test", []string{"entativa"}))
	return svc, repo, frozen
}

func testIdentity() *model.Identity {
	return &model.Identity{ID: uuid.New(), Eid: "alice", Email: "alice@example.com", Status: model.IdentityActive}
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	ident := testIdentity()

	signed, row, err := svc.IssueAccessToken(ctx, ident, uuid.New(), nil, "profile")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if row.Type != model.TokenAccess {
		t.Fatalf("expected access token row, got %s", row.Type)
	}
	claims, err := svc.VerifyAccessToken(ctx, signed)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.Subject != ident.ID.String() {
		t.Fatalf("expected subject %s, got %s", ident.ID, claims.Subject)
	}
}

func TestVerifyAccessTokenRejectsRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	ident := testIdentity()

	signed, _, err := svc.IssueRefreshToken(ctx, ident, uuid.New(), "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, err := svc.VerifyAccessToken(ctx, signed); err == nil {
		t.Fatal("expected refresh token to be rejected as an access token")
	}
}

func TestRevokeSessionBlacklistsBothTokens(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	ident := testIdentity()
	sessionID := uuid.New()

	access, accessRow, err := svc.IssueAccessToken(ctx, ident, sessionID, nil, "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	refresh, refreshRow, err := svc.IssueRefreshToken(ctx, ident, sessionID, "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	session := &model.Session{
		AccessTokenID:  accessRow.ID,
		RefreshTokenID: refreshRow.ID,
		ExpiresAt:      time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
	}
	if err := svc.RevokeSession(ctx, session, "user", "user_logout"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	if _, err := svc.VerifyAccessToken(ctx, access); err == nil {
		t.Fatal("expected revoked access token to fail verification")
	}
	if _, err := svc.VerifyRefreshToken(ctx, refresh); err == nil {
		t.Fatal("expected revoked refresh token to fail verification")
	}
}

func TestAuthorizationCodeReuseCascadeRevokesTokens(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	ident := testIdentity()

	code, err := svc.IssueAuthorizationCode(ctx, AuthCodeGrant{ClientID: "client1", UserID: ident.ID, RedirectURI: "https://app.example.com/cb"})
	if err != nil {
		t.Fatalf("IssueAuthorizationCode: %v", err)
	}

	grant, hash, err := svc.ConsumeAuthorizationCode(ctx, code, "token_service")
	if err != nil {
		t.Fatalf("first ConsumeAuthorizationCode: %v", err)
	}
	if grant.ClientID != "client1" {
		t.Fatalf("expected grant client1, got %s", grant.ClientID)
	}

	access, accessRow, err := svc.IssueAccessToken(ctx, ident, uuid.New(), &grant.ClientID, "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if err := svc.BindAuthCode(ctx, accessRow.ID, hash); err != nil {
		t.Fatalf("BindAuthCode: %v", err)
	}

	if _, _, err := svc.ConsumeAuthorizationCode(ctx, code, "token_service"); err == nil {
		t.Fatal("expected second consumption of the same code to fail")
	}

	if _, err := svc.VerifyAccessToken(ctx, access); err == nil {
		t.Fatal("expected token minted from a replayed code to be revoked")
	}
}

func TestRotateRefreshTokenBurnsTheOldToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	ident := testIdentity()
	sessionID := uuid.New()

	oldRefresh, _, err := svc.IssueRefreshToken(ctx, ident, sessionID, "profile")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	oldClaims, err := svc.VerifyRefreshToken(ctx, oldRefresh)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}

	_, newRefresh, err := svc.RotateRefreshToken(ctx, ident, oldClaims, nil, "profile")
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if newRefresh == "" {
		t.Fatal("expected a rotated-in refresh token")
	}

	if _, err := svc.VerifyRefreshToken(ctx, oldRefresh); err == nil {
		t.Fatal("expected the rotated-away refresh token to fail verification")
	}
	// The replay of the old token above must have burned its successor.
	if _, err := svc.VerifyRefreshToken(ctx, newRefresh); err == nil {
		t.Fatal("expected the successor to be revoked after the old token was replayed")
	}
}

func TestRefreshGraceToleratesRetryThenExpires(t *testing.T) {
	ctx := context.Background()
	frozen := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	keyring, err := NewKeyring()
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	cfg := DefaultConfig("https://id.entativa.test", []string{"entativa"})
	cfg.RefreshGrace = 30 * time.Second
	svc := NewService(newFakeRepo(), kv.NewMemory(frozen.Now), keyring, frozen, cfg)
	ident := testIdentity()

	oldRefresh, _, err := svc.IssueRefreshToken(ctx, ident, uuid.New(), "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	oldClaims, err := svc.VerifyRefreshToken(ctx, oldRefresh)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if _, _, err := svc.RotateRefreshToken(ctx, ident, oldClaims, nil, ""); err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}

	// Within the grace window a client retry with the old token still
	// verifies; after it elapses the token is dead.
	if _, err := svc.VerifyRefreshToken(ctx, oldRefresh); err != nil {
		t.Fatalf("expected the old token to survive inside the grace window, got %v", err)
	}
	frozen.Advance(time.Minute)
	if _, err := svc.VerifyRefreshToken(ctx, oldRefresh); err == nil {
		t.Fatal("expected the old token to be rejected after the grace window")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, repo, frozen := newTestService(t)

	plaintext, row, err := svc.IssueAPIKey(ctx, "service-account-1", []string{"read"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	prefix, secret, found := strings.Cut(plaintext, ".")
	if !found || len(prefix) != 8 {
		t.Fatalf("expected <prefix>.<secret> shape, got %q", plaintext)
	}
	stored := repo.byID[row.ID]
	if stored.Prefix != prefix {
		t.Fatalf("expected the prefix stored in plaintext for identification, got %q", stored.Prefix)
	}
	if stored.Hash == secret || stored.Hash == plaintext {
		t.Fatal("expected only a hash of the secret at rest")
	}

	got, err := svc.VerifyAPIKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("VerifyAPIKey: %v", err)
	}
	if got.Subject != "service-account-1" || got.UsageCount != 1 {
		t.Fatalf("unexpected row after verify: %+v", got)
	}
	if _, err := svc.VerifyAPIKey(ctx, "wrongpre."+secret); err == nil {
		t.Fatal("expected a mismatched prefix to be rejected")
	}

	frozen.Advance(2 * time.Hour)
	if _, err := svc.VerifyAPIKey(ctx, plaintext); err == nil {
		t.Fatal("expected expiry to invalidate the key")
	}
}

func TestIntrospectInactiveForGarbageToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	result := svc.Introspect(ctx, "not-a-real-token")
	if result.Active {
		t.Fatal("expected inactive result for an unparseable token")
	}
}

func TestRevokeRawIsIdempotentForUnknownToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	if err := svc.RevokeRaw(ctx, "garbage", "someone"); err != nil {
		t.Fatalf("expected RevokeRaw to be a no-op success for garbage input, got %v", err)
	}
}

func TestRevokeRawBlacklistsAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	ident := testIdentity()

	signed, _, err := svc.IssueAccessToken(ctx, ident, uuid.New(), nil, "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if err := svc.RevokeRaw(ctx, signed, "user"); err != nil {
		t.Fatalf("RevokeRaw: %v", err)
	}
	if _, err := svc.VerifyAccessToken(ctx, signed); err == nil {
		t.Fatal("expected revoked token to fail verification")
	}
}
