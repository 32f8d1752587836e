// Package identity implements C2 IdentityStore's in-process half: identity
// registration, profile maintenance, password lifecycle, and the lockout
// bookkeeping spec.md §4.3 describes as living on the Identity entity
// itself. Durable reads/writes go through store/postgres.IdentityRepository.
// The failed-login bookkeeping (RecordFailedLogin, ResetFailedLogins) runs
// under a per-identity store/kv.Locker lock; the other writes do not take it.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/entativa/id/domain/credential"
	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/store/kv"
)

// BcryptCost is the minimum bcrypt cost spec.md §3 requires ("bcrypt-class,
// cost >= 12").
const BcryptCost = 12

// Config tunes the lockout policy of spec.md §4.3.
type Config struct {
	// MaxFailedAttempts is N, the number of failed logins counted within
	// FailureWindow that trips the lockout.
	MaxFailedAttempts int
	// FailureWindow is W. The window counter expires W after the first
	// failure it counts, so attempts are counted in fixed windows, not a
	// sliding one.
	FailureWindow time.Duration
	// LockoutDuration is L, how long an identity stays locked once tripped.
	LockoutDuration time.Duration
}

// DefaultConfig matches spec.md §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts: 5,
		FailureWindow:     15 * time.Minute,
		LockoutDuration:   30 * time.Minute,
	}
}

// Repository is the narrow persistence surface Manager depends on.
type Repository interface {
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*model.Identity, error)
	GetIdentityByEid(ctx context.Context, eid string) (*model.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error)
	UpdateIdentity(ctx context.Context, identity *model.Identity) error
	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfileByIdentityID(ctx context.Context, identityID uuid.UUID) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

// Manager is C2's in-process half.
type Manager struct {
	repo      Repository
	cache     kv.Store
	locker    *kv.Locker
	clock     clock.Clock
	cfg       Config
	evaluator *credential.Evaluator
}

// NewManager wires a Manager over repo. cache backs both the per-identity
// advisory lock taken by the failed-login bookkeeping and the windowed
// failed-login counter.
// evaluator gates Register/ChangePassword on spec.md §4.2's strength rules;
// a nil evaluator disables that check rather than failing every call, the
// same optional-collaborator pattern domain/mfa.AuditSink uses.
func NewManager(repo Repository, cache kv.Store, clk clock.Clock, cfg Config, evaluator *credential.Evaluator) *Manager {
	return &Manager{repo: repo, cache: cache, locker: kv.NewLocker(cache), clock: clk, cfg: cfg, evaluator: evaluator}
}

func lockKey(id uuid.UUID) string { return "identity:" + id.String() }

func failedLoginKey(id uuid.UUID) string { return "rate:failed_login:" + id.String() }

// localPart returns the portion of email before "@", used to penalize
// passwords that trivially match the account's own address.
func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// Register creates a new Identity and its 1:1 Profile. eid and email must
// be globally unique (spec.md §3 invariant); callers are expected to have
// already run eid through domain/handle.Governor before calling this.
func (m *Manager) Register(ctx context.Context, eid, email string, phone *string, password string) (*model.Identity, error) {
	eid = strings.ToLower(strings.TrimSpace(eid))
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := m.repo.GetIdentityByEid(ctx, eid); err == nil {
		return nil, errs.New(errs.Conflict, "handle already taken")
	} else if !errs.Is(err, errs.Input) {
		return nil, err
	}
	if _, err := m.repo.GetIdentityByEmail(ctx, email); err == nil {
		return nil, errs.New(errs.Conflict, "email already registered")
	} else if !errs.Is(err, errs.Input) {
		return nil, err
	}

	if m.evaluator != nil {
		if _, err := m.evaluator.EvaluatePassword(password, credential.Profile{EmailLocalPart: localPart(email)}); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "hash password", err)
	}

	now := m.clock.Now()
	identity := &model.Identity{
		ID:                 uuid.New(),
		Eid:                eid,
		Email:              email,
		Phone:              phone,
		PasswordHash:       string(hash),
		Status:             model.IdentityActive,
		VerificationStatus: model.VerificationNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.repo.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}

	profile := &model.Profile{
		ID:                    uuid.New(),
		IdentityID:            identity.ID,
		DisplayNameVisibility: model.VisibilityPublic,
		BioVisibility:         model.VisibilityPrivate,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := m.repo.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	return identity, nil
}

// Get loads an Identity by id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	return m.repo.GetIdentityByID(ctx, id)
}

// GetByEid loads an Identity by its handle.
func (m *Manager) GetByEid(ctx context.Context, eid string) (*model.Identity, error) {
	return m.repo.GetIdentityByEid(ctx, strings.ToLower(strings.TrimSpace(eid)))
}

// GetByEmail loads an Identity by email, used by SessionAuthenticator to
// resolve the login principal.
func (m *Manager) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	return m.repo.GetIdentityByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// VerifyPassword does a constant-time bcrypt comparison, per spec.md §4.3
// ("Verify credential against stored hash with constant-time comparison").
func (m *Manager) VerifyPassword(identity *model.Identity, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) == nil
}

// IsLocked reports whether identity is currently within its lockout window.
func (m *Manager) IsLocked(identity *model.Identity) bool {
	return identity.LockedUntil != nil && m.clock.Now().Before(*identity.LockedUntil)
}

// RecordFailedLogin increments the failed-attempt counter and, once the
// count within cfg.FailureWindow reaches cfg.MaxFailedAttempts, sets
// locked_until per spec.md §4.3. The windowed count lives in the
// KeyValueStore under a TTL matching the window (spec.md §5: "Failed-login
// increment uses atomic increment"); the durable row mirrors the raw
// counter. The durable write is serialized under the per-identity advisory
// lock.
func (m *Manager) RecordFailedLogin(ctx context.Context, identity *model.Identity) error {
	windowed, err := m.cache.Incr(ctx, failedLoginKey(identity.ID), m.cfg.FailureWindow)
	if err != nil {
		return errs.Wrap(errs.Transient, "failed-login counter", err)
	}

	unlock, ok, err := m.locker.Lock(ctx, lockKey(identity.ID), 30*time.Second)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.Transient, "identity locked by concurrent writer").WithCode("locked")
	}
	defer unlock(ctx)

	now := m.clock.Now()
	identity.FailedLoginAttempts++
	if windowed >= int64(m.cfg.MaxFailedAttempts) {
		until := now.Add(m.cfg.LockoutDuration)
		identity.LockedUntil = &until
	}
	identity.UpdatedAt = now
	return m.repo.UpdateIdentity(ctx, identity)
}

// ResetFailedLogins clears the failed-attempt counter and lockout, and
// stamps last_login_at, per spec.md §4.3 ("On success, reset counter and
// set last_login_at").
func (m *Manager) ResetFailedLogins(ctx context.Context, identity *model.Identity) error {
	unlock, ok, err := m.locker.Lock(ctx, lockKey(identity.ID), 30*time.Second)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.Transient, "identity locked by concurrent writer").WithCode("locked")
	}
	defer unlock(ctx)

	_ = m.cache.Del(ctx, failedLoginKey(identity.ID))

	now := m.clock.Now()
	identity.FailedLoginAttempts = 0
	identity.LockedUntil = nil
	identity.LastLoginAt = &now
	identity.UpdatedAt = now
	return m.repo.UpdateIdentity(ctx, identity)
}

// ChangePassword verifies oldPassword before replacing the stored hash.
func (m *Manager) ChangePassword(ctx context.Context, identity *model.Identity, oldPassword, newPassword string) error {
	if !m.VerifyPassword(identity, oldPassword) {
		return errs.New(errs.Auth, "invalid credentials")
	}
	if m.evaluator != nil {
		if _, err := m.evaluator.EvaluatePassword(newPassword, credential.Profile{EmailLocalPart: localPart(identity.Email)}); err != nil {
			return err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), BcryptCost)
	if err != nil {
		return errs.Wrap(errs.Fatal, "hash password", err)
	}
	identity.PasswordHash = string(hash)
	identity.UpdatedAt = m.clock.Now()
	return m.repo.UpdateIdentity(ctx, identity)
}

// RewriteEid changes an identity's handle, used by the reservation
// workflow's moderator-approval path (spec.md §4.1: "rewrite Identity's eid
// if requested"). Callers are responsible for recording HandleChangeHistory
// and the audit event; RewriteEid only performs the Identity write.
func (m *Manager) RewriteEid(ctx context.Context, identity *model.Identity, newEid string) error {
	identity.Eid = strings.ToLower(strings.TrimSpace(newEid))
	identity.UpdatedAt = m.clock.Now()
	return m.repo.UpdateIdentity(ctx, identity)
}

// GetProfile loads the 1:1 Profile for identityID.
func (m *Manager) GetProfile(ctx context.Context, identityID uuid.UUID) (*model.Profile, error) {
	return m.repo.GetProfileByIdentityID(ctx, identityID)
}

// UpdateProfile persists profile edits.
func (m *Manager) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = m.clock.Now()
	return m.repo.UpdateProfile(ctx, profile)
}

// SetStatus transitions an identity's lifecycle status (active, locked,
// suspended, deleted).
func (m *Manager) SetStatus(ctx context.Context, identity *model.Identity, status model.IdentityStatus) error {
	identity.Status = status
	identity.UpdatedAt = m.clock.Now()
	return m.repo.UpdateIdentity(ctx, identity)
}
