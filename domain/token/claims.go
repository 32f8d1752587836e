package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the JWT claim set minted for access tokens, per spec.md
// §4.4's required claim list. sub is the identity UUID (jwt.RegisteredClaims
// covers iss/sub/aud/exp/iat/nbf/jti); the remainder are Entativa-specific.
type AccessClaims struct {
	jwt.RegisteredClaims
	Eid                string `json:"eid"`
	Email              string `json:"email"`
	Verified           bool   `json:"verified"`
	Status             string `json:"status"`
	VerificationStatus string `json:"verification_status"`
	VerificationBadge  string `json:"verification_badge,omitempty"`
	ReputationScore    int    `json:"reputation_score"`
	SessionID          string `json:"session_id"`
	ClientID           string `json:"client_id,omitempty"`
	Scope              string `json:"scope,omitempty"`
	TokenType          string `json:"token_type"`
}

// RefreshClaims is the minimal claim set for refresh tokens: only the
// identity and session ids, no PII, per spec.md §4.4.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"`
}

// peekClaims is the minimal shape RevokeRaw parses a signed token into: it
// only needs the registered jti/exp and the token_type discriminator both
// AccessClaims and RefreshClaims carry under the same key.
type peekClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)
