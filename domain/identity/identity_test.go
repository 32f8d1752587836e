package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

// fakeRepo is a minimal in-memory Repository, standing in for
// store/postgres in tests per SPEC_FULL.md §8.
type fakeRepo struct {
	byID     map[uuid.UUID]*model.Identity
	byEid    map[string]uuid.UUID
	byEmail  map[string]uuid.UUID
	profiles map[uuid.UUID]*model.Profile
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:     make(map[uuid.UUID]*model.Identity),
		byEid:    make(map[string]uuid.UUID),
		byEmail:  make(map[string]uuid.UUID),
		profiles: make(map[uuid.UUID]*model.Profile),
	}
}

func (f *fakeRepo) CreateIdentity(_ context.Context, identity *model.Identity) error {
	cp := *identity
	f.byID[identity.ID] = &cp
	f.byEid[identity.Eid] = identity.ID
	f.byEmail[identity.Email] = identity.ID
	return nil
}

func (f *fakeRepo) GetIdentityByID(_ context.Context, id uuid.UUID) (*model.Identity, error) {
	if i, ok := f.byID[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, errs.New(errs.Input, "record not found")
}

func (f *fakeRepo) GetIdentityByEid(ctx context.Context, eid string) (*model.Identity, error) {
	id, ok := f.byEid[eid]
	if !ok {
		return nil, errs.New(errs.Input, "record not found")
	}
	return f.GetIdentityByID(ctx, id)
}

func (f *fakeRepo) GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	id, ok := f.byEmail[email]
	if !ok {
		return nil, errs.New(errs.Input, "record not found")
	}
	return f.GetIdentityByID(ctx, id)
}

func (f *fakeRepo) UpdateIdentity(_ context.Context, identity *model.Identity) error {
	cp := *identity
	f.byID[identity.ID] = &cp
	return nil
}

func (f *fakeRepo) CreateProfile(_ context.Context, profile *model.Profile) error {
	cp := *profile
	f.profiles[profile.IdentityID] = &cp
	return nil
}

func (f *fakeRepo) GetProfileByIdentityID(_ context.Context, identityID uuid.UUID) (*model.Profile, error) {
	p, ok := f.profiles[identityID]
	if !ok {
		return nil, errs.New(errs.Input, "record not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) UpdateProfile(_ context.Context, profile *model.Profile) error {
	cp := *profile
	f.profiles[profile.IdentityID] = &cp
	return nil
}

func newTestManager() (*Manager, *fakeRepo, *clock.Frozen) {
	repo := newFakeRepo()
	frozen := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr := NewManager(repo, kv.NewMemory(frozen.Now), frozen, DefaultConfig(), nil)
	return mgr, repo, frozen
}

func TestRegisterRejectsDuplicateEid(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	if _, err := mgr.Register(ctx, "alice", "alice@example.com", nil, "correct horse battery staple"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := mgr.Register(ctx, "alice", "other@example.com", nil, "correct horse battery staple")
	if !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	if _, err := mgr.Register(ctx, "alice", "alice@example.com", nil, "correct horse battery staple"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := mgr.Register(ctx, "alice2", "alice@example.com", nil, "correct horse battery staple")
	if !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	mgr, _, frozen := newTestManager()
	ctx := context.Background()

	identity, err := mgr.Register(ctx, "bob", "bob@example.com", nil, "hunter2-but-longer")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := mgr.RecordFailedLogin(ctx, identity); err != nil {
			t.Fatalf("record failed login %d: %v", i, err)
		}
	}

	if !mgr.IsLocked(identity) {
		t.Fatal("expected identity to be locked after 5 failures")
	}

	frozen.Advance(1800 * time.Second)
	if mgr.IsLocked(identity) {
		t.Fatal("expected lockout to have expired after 1800s")
	}
}

func TestFailuresOutsideWindowDoNotTripLockout(t *testing.T) {
	mgr, _, frozen := newTestManager()
	ctx := context.Background()

	identity, err := mgr.Register(ctx, "erin", "erin@example.com", nil, "a-reasonably-long-password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := mgr.RecordFailedLogin(ctx, identity); err != nil {
			t.Fatalf("record failed login %d: %v", i, err)
		}
	}
	// The window elapses; the earlier failures no longer count toward the
	// threshold even though the raw counter kept climbing.
	frozen.Advance(16 * time.Minute)
	if err := mgr.RecordFailedLogin(ctx, identity); err != nil {
		t.Fatalf("record failed login after window: %v", err)
	}

	if mgr.IsLocked(identity) {
		t.Fatal("expected no lockout when failures span beyond the window")
	}
	if identity.FailedLoginAttempts != 5 {
		t.Fatalf("expected raw counter 5, got %d", identity.FailedLoginAttempts)
	}
}

func TestResetFailedLoginsClearsLockout(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	identity, err := mgr.Register(ctx, "carol", "carol@example.com", nil, "a-reasonably-long-password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = mgr.RecordFailedLogin(ctx, identity)
	}
	if !mgr.IsLocked(identity) {
		t.Fatal("expected lockout")
	}
	if err := mgr.ResetFailedLogins(ctx, identity); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mgr.IsLocked(identity) {
		t.Fatal("expected lockout cleared after reset")
	}
	if identity.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", identity.FailedLoginAttempts)
	}
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	identity, err := mgr.Register(ctx, "dave", "dave@example.com", nil, "initial-password-value")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := mgr.ChangePassword(ctx, identity, "wrong-password", "new-password-value"); !errs.Is(err, errs.Auth) {
		t.Fatalf("expected auth error for wrong old password, got %v", err)
	}

	if err := mgr.ChangePassword(ctx, identity, "initial-password-value", "new-password-value"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if !mgr.VerifyPassword(identity, "new-password-value") {
		t.Fatal("expected new password to verify")
	}
}
