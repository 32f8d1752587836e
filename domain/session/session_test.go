package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/identity"
	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

type fakeIdentityRepo struct {
	byID  map[uuid.UUID]*model.Identity
	byEid map[string]uuid.UUID
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{byID: make(map[uuid.UUID]*model.Identity), byEid: make(map[string]uuid.UUID)}
}

func (r *fakeIdentityRepo) CreateIdentity(ctx context.Context, i *model.Identity) error {
	cp := *i
	r.byID[i.ID] = &cp
	r.byEid[i.Eid] = i.ID
	return nil
}
func (r *fakeIdentityRepo) GetIdentityByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, notFound()
	}
	return i, nil
}
func (r *fakeIdentityRepo) GetIdentityByEid(ctx context.Context, eid string) (*model.Identity, error) {
	id, ok := r.byEid[eid]
	if !ok {
		return nil, notFound()
	}
	return r.byID[id], nil
}
func (r *fakeIdentityRepo) GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	for _, i := range r.byID {
		if i.Email == email {
			return i, nil
		}
	}
	return nil, notFound()
}
func (r *fakeIdentityRepo) UpdateIdentity(ctx context.Context, i *model.Identity) error {
	cp := *i
	r.byID[i.ID] = &cp
	return nil
}
func (r *fakeIdentityRepo) CreateProfile(ctx context.Context, p *model.Profile) error { return nil }
func (r *fakeIdentityRepo) GetProfileByIdentityID(ctx context.Context, identityID uuid.UUID) (*model.Profile, error) {
	return &model.Profile{IdentityID: identityID}, nil
}
func (r *fakeIdentityRepo) UpdateProfile(ctx context.Context, p *model.Profile) error { return nil }

func notFound() error {
	return errs.New(errs.Input, "record not found")
}

type fakeSessionRepo struct {
	sessions map[uuid.UUID]*model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*model.Session)}
}
func (r *fakeSessionRepo) CreateSession(ctx context.Context, s *model.Session) error {
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}
func (r *fakeSessionRepo) GetSessionByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound()
	}
	return s, nil
}
func (r *fakeSessionRepo) ListActiveSessionsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.Session, error) {
	var out []model.Session
	for _, s := range r.sessions {
		if s.IdentityID == identityID && s.RevokedAt == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}
func (r *fakeSessionRepo) RevokeSessionRow(ctx context.Context, s *model.Session) error {
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

type fakeTokenIssuer struct {
	revoked map[uuid.UUID]bool
}

func newFakeTokenIssuer() *fakeTokenIssuer {
	return &fakeTokenIssuer{revoked: make(map[uuid.UUID]bool)}
}
func (f *fakeTokenIssuer) IssueAccessToken(ctx context.Context, ident *model.Identity, sessionID uuid.UUID, clientID *string, scope string) (string, *model.Token, error) {
	id := uuid.New()
	return "access-" + id.String(), &model.Token{ID: id, ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}
func (f *fakeTokenIssuer) IssueRefreshToken(ctx context.Context, ident *model.Identity, sessionID uuid.UUID, scope string) (string, *model.Token, error) {
	id := uuid.New()
	return "refresh-" + id.String(), &model.Token{ID: id, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}, nil
}
func (f *fakeTokenIssuer) RevokeSession(ctx context.Context, s *model.Session, revokedBy, reason string) error {
	f.revoked[s.AccessTokenID] = true
	f.revoked[s.RefreshTokenID] = true
	return nil
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *identity.Manager, *fakeSessionRepo) {
	t.Helper()
	frozen := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mem := kv.NewMemory(frozen.Now)
	identRepo := newFakeIdentityRepo()
	identities := identity.NewManager(identRepo, mem, frozen, identity.DefaultConfig(), nil)
	sessRepo := newFakeSessionRepo()
	tokens := newFakeTokenIssuer()
	auth := NewAuthenticator(sessRepo, identities, tokens, mem, frozen, DefaultConfig(), nil)
	return auth, identities, sessRepo
}

func TestLoginSucceedsAndCreatesSession(t *testing.T) {
	ctx := context.Background()
	auth, identities, _ := newTestAuthenticator(t)

	ident, err := identities.Register(ctx, "alice", "alice@example.com", nil, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := auth.Login(ctx, LoginParams{Identifier: ident.Eid, Password: "correct horse battery staple 9!", UserAgent: "test", IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.AccessToken == "" || got.RefreshToken == "" {
		t.Fatal("expected non-empty tokens")
	}
	if got.Session.IdentityID != ident.ID {
		t.Fatal("expected session bound to identity")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	auth, identities, _ := newTestAuthenticator(t)

	ident, err := identities.Register(ctx, "bob", "bob@example.com", nil, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := auth.Login(ctx, LoginParams{Identifier: ident.Eid, Password: "wrong", IP: "127.0.0.1"}); err == nil {
		t.Fatal("expected login failure for wrong password")
	}
}

func TestLoginAcceptsEmailAsIdentifier(t *testing.T) {
	ctx := context.Background()
	auth, identities, _ := newTestAuthenticator(t)

	if _, err := identities.Register(ctx, "dave", "dave@example.com", nil, "correct horse battery staple 9!"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := auth.Login(ctx, LoginParams{Identifier: "dave@example.com", Password: "correct horse battery staple 9!", IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Login by email: %v", err)
	}
	if got.Session == nil {
		t.Fatal("expected a session")
	}
}

func TestLockedAccountRejectsCorrectPassword(t *testing.T) {
	ctx := context.Background()
	auth, identities, _ := newTestAuthenticator(t)

	ident, err := identities.Register(ctx, "erin", "erin@example.com", nil, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := auth.Login(ctx, LoginParams{Identifier: ident.Eid, Password: "wrong", IP: "127.0.0.1"}); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}

	// The 6th attempt carries the right password but must still be
	// refused until the lockout elapses.
	if _, err := auth.Login(ctx, LoginParams{Identifier: ident.Eid, Password: "correct horse battery staple 9!", IP: "127.0.0.1"}); err == nil {
		t.Fatal("expected lockout to refuse even the correct password")
	}
}

func TestRevokeSessionBlacklistsTokens(t *testing.T) {
	ctx := context.Background()
	auth, identities, sessRepo := newTestAuthenticator(t)

	ident, err := identities.Register(ctx, "carol", "carol@example.com", nil, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := auth.Login(ctx, LoginParams{Identifier: ident.Eid, Password: "correct horse battery staple 9!", IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := auth.RevokeSession(ctx, got.Session.ID, "user_logout"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	stored, err := sessRepo.GetSessionByID(ctx, got.Session.ID)
	if err != nil {
		t.Fatalf("GetSessionByID: %v", err)
	}
	if stored.RevokedAt == nil {
		t.Fatal("expected session marked revoked")
	}
}
