// Package mfa implements C5 MFAManager: enrollment, challenge/verify, and
// backup-code lifecycle for TOTP, SMS, email, and backup-codes factors, per
// spec.md §4.6. The Challenge/Verify split and the stateless-TOTP,
// stateful-SMS distinction are grounded on mateoblack-sentinel's
// mfa.Verifier interface (Challenge returns an opaque token; Verify takes
// that token plus a code), generalized to cover backup codes as a third
// verification shape that interface doesn't need.
package mfa

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/entativa/id/domain/model"
	"github.com/entativa/id/errs"
	"github.com/entativa/id/internal/clock"
	"github.com/entativa/id/pkg/idgen"
	"github.com/entativa/id/store/kv"
)

// Config holds MFAManager's tunables.
type Config struct {
	// MaxConsecutiveFailures deactivates a factor after this many failed
	// verifications in a row, per spec.md §4.6.
	MaxConsecutiveFailures int
	// OTPTTL is how long an SMS/email one-time code remains valid.
	OTPTTL time.Duration
}

func DefaultConfig() Config {
	return Config{MaxConsecutiveFailures: 5, OTPTTL: 5 * time.Minute}
}

// Repository is MFAManager's durable persistence dependency.
type Repository interface {
	CreateMFAMethod(ctx context.Context, m *model.MFAMethod) error
	ListMFAMethodsByIdentityID(ctx context.Context, identityID uuid.UUID) ([]model.MFAMethod, error)
	UpdateMFAMethod(ctx context.Context, m *model.MFAMethod) error
	SetPrimaryMFAMethod(ctx context.Context, identityID, methodID uuid.UUID) error
}

// OTPSender delivers a one-time code to an SMS or email factor's target.
// Deliberately interface-only: concrete transports live outside this
// package, mirroring spec.md §4.9's NotificationDispatcher being
// "interface-only... implementations external".
type OTPSender interface {
	SendOTP(ctx context.Context, method *model.MFAMethod, code string) error
}

// AuditSink records security-relevant MFA events. Optional; nil disables
// recording rather than failing enrollment/verification.
type AuditSink interface {
	RecordSecurityEvent(ctx context.Context, identityID uuid.UUID, action string, details map[string]string) error
}

// Manager is C5 MFAManager.
type Manager struct {
	repo   Repository
	cache  kv.Store
	clock  clock.Clock
	cfg    Config
	sender OTPSender
	audit  AuditSink
}

func NewManager(repo Repository, cache kv.Store, clk clock.Clock, cfg Config, sender OTPSender, audit AuditSink) *Manager {
	return &Manager{repo: repo, cache: cache, clock: clk, cfg: cfg, sender: sender, audit: audit}
}

func otpCacheKey(methodID uuid.UUID) string { return "mfa:otp:" + methodID.String() }

// EnrollTOTP generates a fresh TOTP secret and an unverified factor row,
// returning the otpauth:// URI for an authenticator app to scan.
func (m *Manager) EnrollTOTP(ctx context.Context, identityID uuid.UUID, issuer, accountName string) (*model.MFAMethod, string, error) {
	secret, err := idgen.TOTPSecret()
	if err != nil {
		return nil, "", err
	}
	method := &model.MFAMethod{
		ID:         uuid.New(),
		IdentityID: identityID,
		Kind:       model.MFATOTP,
		SecretEnc:  secret,
		CreatedAt:  m.clock.Now(),
	}
	if err := m.repo.CreateMFAMethod(ctx, method); err != nil {
		return nil, "", err
	}
	return method, OTPAuthURI(issuer, accountName, secret), nil
}

// EnrollSMS registers an unverified SMS factor bound to phone. The target
// is held in SecretEnc, since SMS/email factors carry a destination rather
// than a long-lived secret.
func (m *Manager) EnrollSMS(ctx context.Context, identityID uuid.UUID, phone string) (*model.MFAMethod, error) {
	return m.enrollTarget(ctx, identityID, model.MFASMS, phone)
}

// EnrollEmail is EnrollSMS's email-factor counterpart.
func (m *Manager) EnrollEmail(ctx context.Context, identityID uuid.UUID, email string) (*model.MFAMethod, error) {
	return m.enrollTarget(ctx, identityID, model.MFAEmail, email)
}

func (m *Manager) enrollTarget(ctx context.Context, identityID uuid.UUID, kind model.MFAKind, target string) (*model.MFAMethod, error) {
	method := &model.MFAMethod{
		ID:         uuid.New(),
		IdentityID: identityID,
		Kind:       kind,
		SecretEnc:  target,
		CreatedAt:  m.clock.Now(),
	}
	if err := m.repo.CreateMFAMethod(ctx, method); err != nil {
		return nil, err
	}
	return method, nil
}

// EnrollBackupCodes generates BackupCodeCount fresh one-time codes, storing
// only their hashes, and returns the plaintext codes for one-time display.
func (m *Manager) EnrollBackupCodes(ctx context.Context, identityID uuid.UUID) (*model.MFAMethod, []string, error) {
	plaintext, encoded, err := generateBackupCodes()
	if err != nil {
		return nil, nil, err
	}
	method := &model.MFAMethod{
		ID:         uuid.New(),
		IdentityID: identityID,
		Kind:       model.MFABackupCodes,
		SecretEnc:  encoded,
		Verified:   true, // possession is proven by generation itself
		CreatedAt:  m.clock.Now(),
	}
	if err := m.repo.CreateMFAMethod(ctx, method); err != nil {
		return nil, nil, err
	}
	return method, plaintext, nil
}

// RegenerateBackupCodes invalidates every prior backup code and issues a
// fresh set, per SPEC_FULL.md §4.6's supplemented "prompted to regenerate"
// operation.
func (m *Manager) RegenerateBackupCodes(ctx context.Context, method *model.MFAMethod) ([]string, error) {
	if method.Kind != model.MFABackupCodes {
		return nil, errs.New(errs.Input, "method is not a backup-codes factor")
	}
	plaintext, encoded, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	method.SecretEnc = encoded
	method.Verified = true
	method.FailureCount = 0
	if err := m.repo.UpdateMFAMethod(ctx, method); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// ListFactors returns every factor enrolled for identityID.
func (m *Manager) ListFactors(ctx context.Context, identityID uuid.UUID) ([]model.MFAMethod, error) {
	return m.repo.ListMFAMethodsByIdentityID(ctx, identityID)
}

// SetPrimary designates method as the identity's primary factor.
func (m *Manager) SetPrimary(ctx context.Context, identityID, methodID uuid.UUID) error {
	return m.repo.SetPrimaryMFAMethod(ctx, identityID, methodID)
}

// Challenge begins verification of method. TOTP is stateless and returns no
// side effect; SMS and email generate and send a fresh code. The returned
// token is passed back into Verify/ConfirmEnrollment.
func (m *Manager) Challenge(ctx context.Context, method *model.MFAMethod) (challengeToken string, err error) {
	switch method.Kind {
	case model.MFATOTP:
		return method.ID.String(), nil
	case model.MFASMS, model.MFAEmail:
		code, err := idgen.NumericOTP(6)
		if err != nil {
			return "", err
		}
		if err := m.cache.Set(ctx, otpCacheKey(method.ID), idgen.Hash(code), m.cfg.OTPTTL); err != nil {
			return "", err
		}
		if m.sender != nil {
			if err := m.sender.SendOTP(ctx, method, code); err != nil {
				return "", err
			}
		}
		return method.ID.String(), nil
	case model.MFABackupCodes:
		return "", errs.New(errs.Input, "backup codes do not use a challenge")
	default:
		return "", errs.New(errs.Input, "unsupported factor kind")
	}
}

// ConfirmEnrollment proves possession of a just-enrolled TOTP/SMS/email
// factor before marking it verified, per spec.md §4.6.
func (m *Manager) ConfirmEnrollment(ctx context.Context, method *model.MFAMethod, code string) error {
	ok, err := m.checkCode(ctx, method, code)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.Auth, "invalid verification code").WithCode("invalid_code")
	}
	method.Verified = true
	method.FailureCount = 0
	return m.repo.UpdateMFAMethod(ctx, method)
}

// Verify checks code for an already-verified factor at login/step-up time,
// recording usage or failure and deactivating the factor after
// MaxConsecutiveFailures consecutive misses, per spec.md §4.6.
func (m *Manager) Verify(ctx context.Context, method *model.MFAMethod, code string) (bool, error) {
	ok, err := m.checkCode(ctx, method, code)
	if err != nil {
		return false, err
	}

	now := m.clock.Now()
	if ok {
		method.LastUsedAt = &now
		method.UsageCount++
		method.FailureCount = 0
		if err := m.repo.UpdateMFAMethod(ctx, method); err != nil {
			return false, err
		}
		return true, nil
	}

	method.FailureCount++
	deactivated := method.FailureCount >= m.cfg.MaxConsecutiveFailures
	if deactivated {
		method.Verified = false
	}
	if err := m.repo.UpdateMFAMethod(ctx, method); err != nil {
		return false, err
	}
	if deactivated && m.audit != nil {
		_ = m.audit.RecordSecurityEvent(ctx, method.IdentityID, "mfa_factor_deactivated", map[string]string{
			"kind":      string(method.Kind),
			"method_id": method.ID.String(),
		})
	}
	return false, nil
}

func (m *Manager) checkCode(ctx context.Context, method *model.MFAMethod, code string) (bool, error) {
	switch method.Kind {
	case model.MFATOTP:
		return VerifyTOTP(method.SecretEnc, code, m.clock.Now())
	case model.MFASMS, model.MFAEmail:
		stored, err := m.cache.Get(ctx, otpCacheKey(method.ID))
		if err == kv.ErrNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if stored != idgen.Hash(code) {
			return false, nil
		}
		_ = m.cache.Del(ctx, otpCacheKey(method.ID))
		return true, nil
	case model.MFABackupCodes:
		newEncoded, ok, exhausted, err := consumeBackupCode(method.SecretEnc, code)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		method.SecretEnc = newEncoded
		if exhausted && m.audit != nil {
			_ = m.audit.RecordSecurityEvent(ctx, method.IdentityID, "mfa_backup_codes_exhausted", map[string]string{
				"method_id": method.ID.String(),
			})
		}
		return true, nil
	default:
		return false, errs.New(errs.Input, "unsupported factor kind")
	}
}
