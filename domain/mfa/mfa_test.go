package mfa

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

type fakeRepo struct {
	methods map[uuid.UUID]*model.MFAMethod
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{methods: make(map[uuid.UUID]*model.MFAMethod)}
}

func (r *fakeRepo) CreateMFAMethod(ctx context.Context, m *model.MFAMethod) error {
	cp := *m
	r.methods[m.ID] = &cp
	return nil
}

func (r *fakeRepo) ListMFAMethodsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.MFAMethod, error) {
	var out []model.MFAMethod
	for _, m := range r.methods {
		if m.IdentityID == identityID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateMFAMethod(ctx context.Context, m *model.MFAMethod) error {
	cp := *m
	r.methods[m.ID] = &cp
	return nil
}

func (r *fakeRepo) SetPrimaryMFAMethod(ctx context.Context, identityID, methodID uuid.UUID) error {
	for _, m := range r.methods {
		if m.IdentityID == identityID {
			m.Primary = m.ID == methodID
		}
	}
	return nil
}

func newTestManager() (*Manager, *fakeRepo) {
	repo := newFakeRepo()
	frozen := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr := NewManager(repo, kv.NewMemory(frozen.Now), frozen, DefaultConfig(), nil, nil)
	return mgr, repo
}

func TestTOTPEnrollConfirmAndVerify(t *testing.T) {
	mgr, repo := newTestManager()
	ctx := context.Background()
	identityID := uuid.New()

	method, uri, err := mgr.EnrollTOTP(ctx, identityID, "Entativa", "user@example.com")
	if err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	if uri == "" || method.Verified {
		t.Fatalf("expected unverified method with non-empty URI, got verified=%v uri=%q", method.Verified, uri)
	}

	code, err := totpAt(method.SecretEnc, mgr.clock.Now())
	if err != nil {
		t.Fatalf("totpAt: %v", err)
	}
	if err := mgr.ConfirmEnrollment(ctx, method, code); err != nil {
		t.Fatalf("ConfirmEnrollment: %v", err)
	}
	if !method.Verified {
		t.Fatal("expected method verified after ConfirmEnrollment")
	}

	ok, err := mgr.Verify(ctx, method, code)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
	if method.UsageCount != 1 {
		t.Fatalf("expected usage count 1, got %d", method.UsageCount)
	}
	if _, stored := repo.methods[method.ID]; !stored {
		t.Fatal("expected method persisted")
	}
}

func TestSMSChallengeAndVerify(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	identityID := uuid.New()

	var sent string
	mgr.sender = sendFunc(func(ctx context.Context, m *model.MFAMethod, code string) error {
		sent = code
		return nil
	})

	method, err := mgr.EnrollSMS(ctx, identityID, "+15555550123")
	if err != nil {
		t.Fatalf("EnrollSMS: %v", err)
	}
	if _, err := mgr.Challenge(ctx, method); err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if sent == "" {
		t.Fatal("expected OTP sent")
	}

	ok, err := mgr.Verify(ctx, method, sent)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}

	// Replaying the same code fails: it was deleted on first use.
	ok, err = mgr.Verify(ctx, method, sent)
	if err != nil {
		t.Fatalf("Verify replay: %v", err)
	}
	if ok {
		t.Fatal("expected replayed OTP to be rejected")
	}
}

func TestFactorDeactivatesAfterFiveFailures(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	identityID := uuid.New()

	method, _, err := mgr.EnrollTOTP(ctx, identityID, "Entativa", "user@example.com")
	if err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	method.Verified = true

	for i := 0; i < 5; i++ {
		ok, err := mgr.Verify(ctx, method, "000000")
		if err != nil {
			t.Fatalf("Verify attempt %d: %v", i, err)
		}
		if ok {
			t.Fatalf("expected wrong code to fail on attempt %d", i)
		}
	}
	if method.Verified {
		t.Fatal("expected factor deactivated after 5 consecutive failures")
	}
}

func TestBackupCodesConsumedOnceAndExhaust(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	identityID := uuid.New()

	method, codes, err := mgr.EnrollBackupCodes(ctx, identityID)
	if err != nil {
		t.Fatalf("EnrollBackupCodes: %v", err)
	}
	if len(codes) != BackupCodeCount {
		t.Fatalf("expected %d codes, got %d", BackupCodeCount, len(codes))
	}

	for i, code := range codes {
		ok, err := mgr.Verify(ctx, method, code)
		if err != nil || !ok {
			t.Fatalf("consume code %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, err := mgr.Verify(ctx, method, codes[0])
	if err != nil {
		t.Fatalf("Verify reused code: %v", err)
	}
	if ok {
		t.Fatal("expected already-used backup code to be rejected")
	}
}

type sendFunc func(ctx context.Context, m *model.MFAMethod, code string) error

func (f sendFunc) SendOTP(ctx context.Context, m *model.MFAMethod, code string) error {
	return f(ctx, m, code)
}
