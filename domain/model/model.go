// Package model defines the durable entities of spec.md §3, shared across
// the domain components and their store/postgres repository
// implementations. Field tags follow the teacher's shared/models
// convention (`db:"..."` for sqlx, `json:"..."` for API shape).
package model

import (
	"time"

	"github.com/google/uuid"
)

// IdentityStatus is the lifecycle state of an Identity.
type IdentityStatus string

const (
	IdentityActive    IdentityStatus = "active"
	IdentityLocked    IdentityStatus = "locked"
	IdentitySuspended IdentityStatus = "suspended"
	IdentityDeleted   IdentityStatus = "deleted"
)

// VerificationStatus reflects how strongly an Identity's real-world
// ownership of its handle has been established.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// Identity is the stable root entity: one UUID, one unique eid, one unique
// email. See spec.md §3.
type Identity struct {
	ID                  uuid.UUID          `db:"id" json:"id"`
	Eid                 string             `db:"eid" json:"eid"`
	Email               string             `db:"email" json:"email"`
	Phone               *string            `db:"phone" json:"phone,omitempty"`
	PasswordHash        string             `db:"password_hash" json:"-"`
	Status              IdentityStatus     `db:"status" json:"status"`
	VerificationStatus  VerificationStatus `db:"verification_status" json:"verification_status"`
	VerificationBadge   *string            `db:"verification_badge" json:"verification_badge,omitempty"`
	ReputationScore     int                `db:"reputation_score" json:"reputation_score"`
	FailedLoginAttempts int                `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time         `db:"locked_until" json:"-"`
	LastLoginAt         *time.Time         `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// Visibility controls per-field Profile exposure.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

// Profile is 1:1 with Identity and follows its lifecycle.
type Profile struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	IdentityID            uuid.UUID  `db:"identity_id" json:"identity_id"`
	DisplayName           string     `db:"display_name" json:"display_name"`
	Bio                   *string    `db:"bio" json:"bio,omitempty"`
	AvatarURL             *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	DisplayNameVisibility Visibility `db:"display_name_visibility" json:"display_name_visibility"`
	BioVisibility         Visibility `db:"bio_visibility" json:"bio_visibility"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// ProtectedCategory is the fixed category ordering table of spec.md §4.1.
// Index position IS tie-break priority; do not reorder without updating
// every caller that depends on CategoryOrder.
type ProtectedCategory string

const (
	CategoryCelebrity   ProtectedCategory = "celebrity"
	CategoryGovernment  ProtectedCategory = "government"
	CategoryCorporation ProtectedCategory = "corporation"
	CategoryAcademic    ProtectedCategory = "academic"
	CategoryBrand       ProtectedCategory = "brand"
	CategoryNonprofit   ProtectedCategory = "nonprofit"
	CategoryMedia       ProtectedCategory = "media"
	CategoryAthlete     ProtectedCategory = "athlete"
	CategorySystem      ProtectedCategory = "system"
)

// CategoryOrder is the fixed tie-break ordering named in spec.md §4.1
// ("celebrity -> government -> corporation -> ..."). It is a fixed table;
// do not infer it from data.
var CategoryOrder = []ProtectedCategory{
	CategoryCelebrity,
	CategoryGovernment,
	CategoryCorporation,
	CategoryAcademic,
	CategoryBrand,
	CategoryNonprofit,
	CategoryMedia,
	CategoryAthlete,
	CategorySystem,
}

// CategoryRank returns the tie-break rank of c (lower wins). Unknown
// categories rank last.
func CategoryRank(c ProtectedCategory) int {
	for i, known := range CategoryOrder {
		if known == c {
			return i
		}
	}
	return len(CategoryOrder)
}

// ProtectedEntity is a categorized registry row: a real-world person or
// organization whose canonical handle may only be claimed after
// verification.
type ProtectedEntity struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	CanonicalHandle string            `db:"canonical_handle" json:"canonical_handle"`
	Aliases         StringSlice       `db:"aliases" json:"aliases"`
	Category        ProtectedCategory `db:"category" json:"category"`
	Metadata        map[string]string `db:"-" json:"metadata,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// ReservationStatus is the lifecycle state of a ReservationRequest.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationApproved  ReservationStatus = "approved"
	ReservationRejected  ReservationStatus = "rejected"
	ReservationWithdrawn ReservationStatus = "withdrawn"
	ReservationAppealed  ReservationStatus = "appealed"
)

// ReservationRequest tracks a claim on a protected handle through review.
type ReservationRequest struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	IdentityID      uuid.UUID         `db:"identity_id" json:"identity_id"`
	RequestedHandle string            `db:"requested_handle" json:"requested_handle"`
	Justification   string            `db:"justification" json:"justification"`
	EvidenceURIs    StringSlice       `db:"evidence_uris" json:"evidence_uris"`
	Status          ReservationStatus `db:"status" json:"status"`
	Reviewer        *string           `db:"reviewer" json:"reviewer,omitempty"`
	RejectionReason *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AppealedAt      *time.Time        `db:"appealed_at" json:"appealed_at,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	DecidedAt       *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
}

// HandleChangeHistory records every eid rewrite, per spec.md §4.1.
type HandleChangeHistory struct {
	ID         uuid.UUID `db:"id" json:"id"`
	IdentityID uuid.UUID `db:"identity_id" json:"identity_id"`
	OldHandle  string    `db:"old_handle" json:"old_handle"`
	NewHandle  string    `db:"new_handle" json:"new_handle"`
	Reason     string    `db:"reason" json:"reason"`
	ChangedBy  string    `db:"changed_by" json:"changed_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PKCEPolicy controls whether an OAuthClient requires, allows, or forbids
// PKCE on the authorization_code grant.
type PKCEPolicy string

const (
	PKCERequired  PKCEPolicy = "required"
	PKCEOptional  PKCEPolicy = "optional"
	PKCEForbidden PKCEPolicy = "forbidden"
)

// ClientStatus is the lifecycle state of an OAuthClient.
type ClientStatus string

const (
	ClientActive    ClientStatus = "active"
	ClientSuspended ClientStatus = "suspended"
)

// OAuthClient is a registered OAuth2 client application.
type OAuthClient struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	ClientID         string        `db:"client_id" json:"client_id"`
	ClientSecretHash *string       `db:"client_secret_hash" json:"-"`
	RedirectURIs     StringSlice   `db:"redirect_uris" json:"redirect_uris"`
	WildcardRedirect bool          `db:"wildcard_redirect" json:"wildcard_redirect"`
	AllowedScopes    StringSlice   `db:"allowed_scopes" json:"allowed_scopes"`
	GrantTypes       StringSlice   `db:"grant_types" json:"grant_types"`
	PKCEPolicy       PKCEPolicy    `db:"pkce_policy" json:"pkce_policy"`
	AccessTokenTTL   time.Duration `db:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `db:"refresh_token_ttl" json:"refresh_token_ttl"`
	Trusted          bool          `db:"trusted" json:"trusted"`
	Status           ClientStatus  `db:"status" json:"status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// IsPublic reports whether the client has no confidential secret, per
// spec.md §3's invariant that public clients must require PKCE.
func (c OAuthClient) IsPublic() bool { return c.ClientSecretHash == nil }

// TokenType is the kind of credential a Token row represents.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenID      TokenType = "id"
	TokenAPIKey  TokenType = "api_key"
)

// Token is the durable record of an issued credential. The plaintext value
// is never stored — only Hash. See spec.md §3's invariant.
type Token struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Type TokenType `db:"type" json:"type"`
	Hash string    `db:"hash" json:"-"`
	// Prefix is the visible identification half of an api_key token,
	// stored in plaintext for lookup/display; empty for every other type.
	Prefix        string      `db:"prefix" json:"prefix,omitempty"`
	Subject       string      `db:"subject" json:"subject"`
	ClientID      *string     `db:"client_id" json:"client_id,omitempty"`
	Scopes        StringSlice `db:"scopes" json:"scopes"`
	SessionID     *uuid.UUID  `db:"session_id" json:"session_id,omitempty"`
	AuthCodeHash  *string     `db:"auth_code_hash" json:"-"`
	IssuedAt      time.Time   `db:"issued_at" json:"issued_at"`
	ExpiresAt     time.Time   `db:"expires_at" json:"expires_at"`
	LastUsedAt    *time.Time  `db:"last_used_at" json:"last_used_at,omitempty"`
	UsageCount    int         `db:"usage_count" json:"usage_count"`
	IsRevoked     bool        `db:"is_revoked" json:"is_revoked"`
	RevokedBy     *string     `db:"revoked_by" json:"revoked_by,omitempty"`
	RevokedAt     *time.Time  `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedReason *string     `db:"revoked_reason" json:"revoked_reason,omitempty"`
	DeviceID      *string     `db:"device_id" json:"device_id,omitempty"`
	SecurityLevel int         `db:"security_level" json:"security_level"`
	RiskScore     int         `db:"risk_score" json:"risk_score"`
}

// Session binds one login to the pair of tokens it minted. Session owns
// the token *ids*; tokens carry the session id back — the cycle named in
// spec.md §9 Design Notes is broken this way, not via a pointer either
// direction.
type Session struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	IdentityID     uuid.UUID  `db:"identity_id" json:"identity_id"`
	DeviceID       *string    `db:"device_id" json:"device_id,omitempty"`
	UserAgent      string     `db:"user_agent" json:"user_agent"`
	IP             string     `db:"ip" json:"ip"`
	GeoCountry     *string    `db:"geo_country" json:"geo_country,omitempty"`
	AccessTokenID  uuid.UUID  `db:"access_token_id" json:"access_token_id"`
	RefreshTokenID uuid.UUID  `db:"refresh_token_id" json:"refresh_token_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// MFAKind enumerates the supported factor kinds.
type MFAKind string

const (
	MFATOTP        MFAKind = "totp"
	MFASMS         MFAKind = "sms"
	MFAEmail       MFAKind = "email"
	MFAWebAuthn    MFAKind = "webauthn"
	MFABackupCodes MFAKind = "backup_codes"
)

// MFAMethod is one enrolled factor for an Identity.
type MFAMethod struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	IdentityID   uuid.UUID  `db:"identity_id" json:"identity_id"`
	Kind         MFAKind    `db:"kind" json:"kind"`
	SecretEnc    string     `db:"secret_enc" json:"-"`
	Verified     bool       `db:"verified" json:"verified"`
	Primary      bool       `db:"is_primary" json:"primary"`
	Priority     int        `db:"priority" json:"priority"`
	UsageCount   int        `db:"usage_count" json:"usage_count"`
	FailureCount int        `db:"failure_count" json:"failure_count"`
	LastUsedAt   *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// AuditEvent is an append-only security/compliance log row.
type AuditEvent struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	IdentityID  *uuid.UUID        `db:"identity_id" json:"identity_id,omitempty"`
	ActorID     *uuid.UUID        `db:"actor_id" json:"actor_id,omitempty"`
	Action      string            `db:"action" json:"action"`
	Details     map[string]string `db:"-" json:"details,omitempty"`
	IP          string            `db:"ip" json:"ip"`
	UserAgent   string            `db:"user_agent" json:"user_agent"`
	LawfulBasis string            `db:"lawful_basis" json:"lawful_basis"`
	Timestamp   time.Time         `db:"timestamp" json:"timestamp"`
}
