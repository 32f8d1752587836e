// Package handle implements C4 HandleGovernor: syntactic validation, exact
// and fuzzy protected-handle matching over a categorized registry, and the
// reservation workflow, per spec.md §4.1. Fuzzy matching is grounded on
// agnivade/levenshtein (adopted from the example pack's iota-sdk manifest;
// see DESIGN.md), the same library the teacher's pack reaches for wherever
// approximate string matching is needed.
package handle

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

// SimilarityThreshold is the fuzzy-match trigger named in spec.md §4.1.
const SimilarityThreshold = 0.85

// ProtectionCacheTTL is the cache lifetime for a protection Result, keyed by
// normalized handle, per spec.md §4.1.
const ProtectionCacheTTL = 2 * time.Hour

var handlePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{2,29}$`)

// ProtectionKind classifies why a handle is protected.
type ProtectionKind string

const (
	ProtectionNone       ProtectionKind = ""
	ProtectionSystem     ProtectionKind = "system"
	ProtectionExact      ProtectionKind = "exact"
	ProtectionAliasExact ProtectionKind = "alias_exact"
	ProtectionFuzzy      ProtectionKind = "canonical_fuzzy"
	ProtectionAliasFuzzy ProtectionKind = "alias_fuzzy"
)

// Result is the protection-lookup contract of spec.md §4.1.
type Result struct {
	Protected             bool                    `json:"protected"`
	ProtectionKind        ProtectionKind          `json:"protection_kind,omitempty"`
	Category              model.ProtectedCategory `json:"category,omitempty"`
	Reason                string                  `json:"reason,omitempty"`
	SuggestedAlternatives []string                `json:"suggested_alternatives,omitempty"`
	RequiresVerification  bool                    `json:"requires_verification"`
	SimilarityScore       *float64                `json:"similarity_score,omitempty"`
}

// ProtectedRepository is the narrow persistence surface Governor depends on
// for the registry half of spec.md §4.1.
type ProtectedRepository interface {
	IsReservedHandle(ctx context.Context, handle string) (bool, error)
	GetProtectedByCanonicalHandle(ctx context.Context, handle string) (*model.ProtectedEntity, error)
	ListProtectedEntities(ctx context.Context) ([]model.ProtectedEntity, error)
}

// ReservationRepository is the narrow persistence surface Governor depends
// on for the reservation workflow half of spec.md §4.1.
type ReservationRepository interface {
	CreateReservationIfAbsent(ctx context.Context, req *model.ReservationRequest) (ok bool, err error)
	GetReservationByID(ctx context.Context, id uuid.UUID) (*model.ReservationRequest, error)
	UpdateReservation(ctx context.Context, req *model.ReservationRequest) error
	RecordHandleChange(ctx context.Context, h *model.HandleChangeHistory) error
}

// IdentityWriter is the narrow slice of domain/identity.Manager the
// approval path needs to rewrite an Identity's eid.
type IdentityWriter interface {
	RewriteEid(ctx context.Context, identity *model.Identity, newEid string) error
}

// AppealWindow is how long after rejection a user may file one appeal, per
// spec.md §4.1.
const AppealWindow = 30 * 24 * time.Hour

// Governor is C4 HandleGovernor.
type Governor struct {
	protected    ProtectedRepository
	reservations ReservationRepository
	cache        kv.Store
	clock        clock.Clock
	index        *registryIndex
}

// NewGovernor wires a Governor. index is built eagerly from protected's
// current contents; callers that mutate the registry at runtime should call
// RefreshIndex afterward.
func NewGovernor(ctx context.Context, protected ProtectedRepository, reservations ReservationRepository, cache kv.Store, clk clock.Clock) (*Governor, error) {
	g := &Governor{protected: protected, reservations: reservations, cache: cache, clock: clk}
	if err := g.RefreshIndex(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// RefreshIndex reloads the in-memory registry index from the durable store.
// It is safe to call this periodically; the index itself has no implicit
// goroutine driving the refresh (Design Notes' "no hidden goroutines").
func (g *Governor) RefreshIndex(ctx context.Context) error {
	entities, err := g.protected.ListProtectedEntities(ctx)
	if err != nil {
		return err
	}
	g.index = buildIndex(entities)
	return nil
}

// ValidateSyntax enforces spec.md §4.1's syntactic rules: length 3-30,
// [a-z0-9_.], first character a letter, no consecutive or trailing
// separators, case-folded and NFC-normalized on input.
func ValidateSyntax(raw string) (string, error) {
	h := normalize(raw)
	if utf8.RuneCountInString(h) < 3 || utf8.RuneCountInString(h) > 30 {
		return "", errs.New(errs.Input, "handle must be 3-30 characters").WithCode("invalid_handle")
	}
	if !handlePattern.MatchString(h) {
		return "", errs.New(errs.Input, "handle must start with a letter and contain only a-z, 0-9, _, .").WithCode("invalid_handle")
	}
	if strings.Contains(h, "__") || strings.Contains(h, "..") || strings.Contains(h, "_.") || strings.Contains(h, "._") {
		return "", errs.New(errs.Input, "handle must not contain consecutive separators").WithCode("invalid_handle")
	}
	if strings.HasSuffix(h, "_") || strings.HasSuffix(h, ".") {
		return "", errs.New(errs.Input, "handle must not end with a separator").WithCode("invalid_handle")
	}
	return h, nil
}

func normalize(raw string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(raw)))
}

// CheckProtection runs the full protection lookup of spec.md §4.1: reserved
// handles, exact registry match, then a fuzzy scan, consulting the 2-hour
// cache first. On any store failure it fails secure, returning
// protected=true, kind=system, per spec.md §4.1's explicit fail-secure
// policy.
func (g *Governor) CheckProtection(ctx context.Context, rawHandle string) (Result, error) {
	h, err := ValidateSyntax(rawHandle)
	if err != nil {
		return Result{}, err
	}

	cacheKey := "protection:" + h
	if cached, err := g.cache.Get(ctx, cacheKey); err == nil {
		if res, ok := decodeResult(cached); ok {
			return res, nil
		}
	}

	res, err := g.lookup(ctx, h)
	if err != nil {
		return Result{Protected: true, ProtectionKind: ProtectionSystem, Reason: "lookup failure, failing secure", RequiresVerification: true}, nil
	}

	if encoded, ok := encodeResult(res); ok {
		_ = g.cache.Set(ctx, cacheKey, encoded, ProtectionCacheTTL)
	}
	return res, nil
}

func (g *Governor) lookup(ctx context.Context, h string) (Result, error) {
	reserved, err := g.protected.IsReservedHandle(ctx, h)
	if err != nil {
		return Result{}, err
	}
	if reserved {
		return Result{Protected: true, ProtectionKind: ProtectionSystem, Reason: "system-reserved handle", RequiresVerification: true}, nil
	}

	if entity, err := g.protected.GetProtectedByCanonicalHandle(ctx, h); err != nil {
		return Result{}, err
	} else if entity != nil {
		return Result{
			Protected:            true,
			ProtectionKind:       ProtectionExact,
			Category:             entity.Category,
			Reason:               fmt.Sprintf("exact match on protected entity %q", entity.CanonicalHandle),
			RequiresVerification: true,
		}, nil
	}

	if hit, ok := g.index.exactAlias(h); ok {
		return Result{
			Protected:            true,
			ProtectionKind:       ProtectionAliasExact,
			Category:             hit.entity.Category,
			Reason:               fmt.Sprintf("exact match on alias of %q", hit.entity.CanonicalHandle),
			RequiresVerification: true,
		}, nil
	}

	if hit, ok := g.index.fuzzyMatch(h); ok {
		sim := hit.similarity
		return Result{
			Protected:            true,
			ProtectionKind:       hit.kind,
			Category:             hit.entity.Category,
			Reason:               fmt.Sprintf("similarity %.2f to protected entity %q", sim, hit.entity.CanonicalHandle),
			RequiresVerification: true,
			SimilarityScore:      &sim,
		}, nil
	}

	return Result{Protected: false}, nil
}

// SuggestAlternatives appends the suffix/prefix variants named in spec.md
// §4.1 and filters them through CheckProtection plus availability, up to 5.
func (g *Governor) SuggestAlternatives(ctx context.Context, h string, year int, isAvailable func(context.Context, string) (bool, error)) ([]string, error) {
	candidates := []string{
		h + "_official",
		h + "_verified",
		fmt.Sprintf("%s%d", h, year),
		"real_" + h,
	}
	if suffix, err := randomThreeDigits(); err == nil {
		candidates = append(candidates, h+suffix)
	}

	var out []string
	for _, c := range candidates {
		if len(out) >= 5 {
			break
		}
		norm, err := ValidateSyntax(c)
		if err != nil {
			continue
		}
		res, err := g.CheckProtection(ctx, norm)
		if err != nil || res.Protected {
			continue
		}
		if isAvailable != nil {
			available, err := isAvailable(ctx, norm)
			if err != nil || !available {
				continue
			}
		}
		out = append(out, norm)
	}
	return out, nil
}

// SubmitReservation runs spec.md §4.1's reservation workflow: validate,
// check protection, atomically insert (rejecting a duplicate pending
// request for the same handle).
func (g *Governor) SubmitReservation(ctx context.Context, identityID uuid.UUID, rawHandle, justification string, evidenceURIs []string) (*model.ReservationRequest, error) {
	h, err := ValidateSyntax(rawHandle)
	if err != nil {
		return nil, err
	}
	if _, err := g.CheckProtection(ctx, h); err != nil {
		return nil, err
	}

	now := g.clock.Now()
	req := &model.ReservationRequest{
		ID:              uuid.New(),
		IdentityID:      identityID,
		RequestedHandle: h,
		Justification:   justification,
		EvidenceURIs:    model.StringSlice(evidenceURIs),
		Status:          model.ReservationPending,
		CreatedAt:       now,
	}
	ok, err := g.reservations.CreateReservationIfAbsent(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.Conflict, "a pending reservation already exists for this handle").WithCode("reservation_conflict")
	}
	return req, nil
}

// ApproveReservation assigns a verification badge, optionally rewrites the
// requester's eid, and records HandleChangeHistory, per spec.md §4.1.
// Emitting the audit event is the caller's responsibility (domain/audit is
// not imported here to avoid a dependency cycle with callers that already
// hold an audit.Recorder).
func (g *Governor) ApproveReservation(ctx context.Context, req *model.ReservationRequest, reviewer string, identity *model.Identity, identityWriter IdentityWriter, rewriteEid bool) error {
	if req.Status != model.ReservationPending {
		return errs.New(errs.Conflict, "reservation is not pending")
	}
	now := g.clock.Now()
	req.Status = model.ReservationApproved
	req.Reviewer = &reviewer
	req.DecidedAt = &now
	if err := g.reservations.UpdateReservation(ctx, req); err != nil {
		return err
	}

	if rewriteEid && identity != nil && identityWriter != nil {
		old := identity.Eid
		if err := identityWriter.RewriteEid(ctx, identity, req.RequestedHandle); err != nil {
			return err
		}
		history := &model.HandleChangeHistory{
			ID:         uuid.New(),
			IdentityID: identity.ID,
			OldHandle:  old,
			NewHandle:  req.RequestedHandle,
			Reason:     "reservation_approved",
			ChangedBy:  reviewer,
			CreatedAt:  now,
		}
		if err := g.reservations.RecordHandleChange(ctx, history); err != nil {
			return err
		}
	}
	return nil
}

// RejectReservation records the reviewer's reason. The requester may file
// one appeal within AppealWindow of this call.
func (g *Governor) RejectReservation(ctx context.Context, req *model.ReservationRequest, reviewer, reason string) error {
	if req.Status != model.ReservationPending {
		return errs.New(errs.Conflict, "reservation is not pending")
	}
	now := g.clock.Now()
	req.Status = model.ReservationRejected
	req.Reviewer = &reviewer
	req.RejectionReason = &reason
	req.DecidedAt = &now
	return g.reservations.UpdateReservation(ctx, req)
}

// Appeal files the one permitted appeal against a rejected reservation,
// within AppealWindow of the rejection decision.
func (g *Governor) Appeal(ctx context.Context, req *model.ReservationRequest) error {
	if req.Status != model.ReservationRejected {
		return errs.New(errs.Conflict, "only a rejected reservation may be appealed")
	}
	if req.AppealedAt != nil {
		return errs.New(errs.Conflict, "an appeal has already been filed").WithCode("appeal_exhausted")
	}
	if req.DecidedAt == nil || g.clock.Now().After(req.DecidedAt.Add(AppealWindow)) {
		return errs.New(errs.Policy, "appeal window has closed").WithCode("appeal_window_closed")
	}
	now := g.clock.Now()
	req.Status = model.ReservationAppealed
	req.AppealedAt = &now
	return g.reservations.UpdateReservation(ctx, req)
}

func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

func randomThreeDigits() (string, error) {
	n, err := cryptoRandInt(1000)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%03d", n), nil
}
