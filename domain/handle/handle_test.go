package handle

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

type fakeProtectedRepo struct {
	reserved map[string]bool
	entities []model.ProtectedEntity
}

func (f *fakeProtectedRepo) IsReservedHandle(_ context.Context, handle string) (bool, error) {
	return f.reserved[handle], nil
}

func (f *fakeProtectedRepo) GetProtectedByCanonicalHandle(_ context.Context, handle string) (*model.ProtectedEntity, error) {
	for _, e := range f.entities {
		if e.CanonicalHandle == handle {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProtectedRepo) ListProtectedEntities(_ context.Context) ([]model.ProtectedEntity, error) {
	return f.entities, nil
}

type fakeReservationRepo struct {
	pending map[string]bool
	history []model.HandleChangeHistory
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{pending: make(map[string]bool)}
}

func (f *fakeReservationRepo) CreateReservationIfAbsent(_ context.Context, req *model.ReservationRequest) (bool, error) {
	key := req.IdentityID.String() + ":" + req.RequestedHandle
	if f.pending[key] {
		return false, nil
	}
	f.pending[key] = true
	return true, nil
}

func (f *fakeReservationRepo) GetReservationByID(_ context.Context, id uuid.UUID) (*model.ReservationRequest, error) {
	return nil, errs.New(errs.Input, "record not found")
}

func (f *fakeReservationRepo) UpdateReservation(_ context.Context, req *model.ReservationRequest) error {
	return nil
}

func (f *fakeReservationRepo) RecordHandleChange(_ context.Context, h *model.HandleChangeHistory) error {
	f.history = append(f.history, *h)
	return nil
}

func newTestGovernor(t *testing.T, entities []model.ProtectedEntity, reserved map[string]bool) *Governor {
	t.Helper()
	protected := &fakeProtectedRepo{reserved: reserved, entities: entities}
	reservations := newFakeReservationRepo()
	frozen := clock.NewFrozen(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := kv.NewMemory(frozen.Now)
	gov, err := NewGovernor(context.Background(), protected, reservations, cache, frozen)
	if err != nil {
		t.Fatalf("new governor: %v", err)
	}
	return gov
}

func TestValidateSyntaxRejectsBadHandles(t *testing.T) {
	cases := []string{"ab", "1abc", "a__b", "a.", "_ab", string(make([]byte, 31))}
	for _, c := range cases {
		if _, err := ValidateSyntax(c); err == nil {
			t.Errorf("expected rejection for %q", c)
		}
	}
}

func TestValidateSyntaxAcceptsGoodHandle(t *testing.T) {
	got, err := ValidateSyntax("  Alice_Smith.01  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "alice_smith.01" {
		t.Fatalf("expected normalized handle, got %q", got)
	}
}

func TestCheckProtectionExactMatch(t *testing.T) {
	entities := []model.ProtectedEntity{
		{ID: uuid.New(), CanonicalHandle: "taylorswift", Category: model.CategoryCelebrity},
	}
	gov := newTestGovernor(t, entities, nil)

	res, err := gov.CheckProtection(context.Background(), "taylorswift")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Protected || res.ProtectionKind != ProtectionExact {
		t.Fatalf("expected exact protection, got %+v", res)
	}
}

func TestCheckProtectionFuzzyMatch(t *testing.T) {
	entities := []model.ProtectedEntity{
		{ID: uuid.New(), CanonicalHandle: "taylorswift", Category: model.CategoryCelebrity},
	}
	gov := newTestGovernor(t, entities, nil)

	res, err := gov.CheckProtection(context.Background(), "taylorswlft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Protected || res.ProtectionKind != ProtectionFuzzy {
		t.Fatalf("expected fuzzy protection, got %+v", res)
	}
}

func TestCheckProtectionUnrelatedHandleNotProtected(t *testing.T) {
	entities := []model.ProtectedEntity{
		{ID: uuid.New(), CanonicalHandle: "taylorswift", Category: model.CategoryCelebrity},
	}
	gov := newTestGovernor(t, entities, nil)

	res, err := gov.CheckProtection(context.Background(), "random_person_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Protected {
		t.Fatalf("expected no protection, got %+v", res)
	}
}

func TestCategoryTieBreakPrefersEarlierCategory(t *testing.T) {
	// Both entities are equidistant from the query handle; celebrity must
	// win over corporation per model.CategoryOrder.
	entities := []model.ProtectedEntity{
		{ID: uuid.New(), CanonicalHandle: "acmecorp", Category: model.CategoryCorporation},
		{ID: uuid.New(), CanonicalHandle: "acmecorpx", Category: model.CategoryCelebrity},
	}
	gov := newTestGovernor(t, entities, nil)

	res, err := gov.CheckProtection(context.Background(), "acmecorp0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Protected {
		t.Fatal("expected protection")
	}
	if res.Category != model.CategoryCelebrity {
		t.Fatalf("expected the celebrity entity to win the tie, got %+v", res)
	}
}

func TestSubmitReservationRejectsDuplicatePending(t *testing.T) {
	gov := newTestGovernor(t, nil, nil)
	identityID := uuid.New()

	if _, err := gov.SubmitReservation(context.Background(), identityID, "some_brand_handle", "I own this", nil); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	_, err := gov.SubmitReservation(context.Background(), identityID, "some_brand_handle", "still me", nil)
	if !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected conflict on duplicate pending reservation, got %v", err)
	}
}
