// Package idgen generates the opaque, high-entropy identifiers the core
// hands out: authorization codes, refresh token secrets, API key secrets,
// and MFA backup codes. The approach — read crypto/rand into a fixed-size
// buffer, then re-encode into an alphabet — mirrors both the teacher's
// auth.authManager.GenerateRefreshToken (crypto/rand + base64) and dexidp's
// storage.newSecureID (crypto/rand + custom base32 alphabet), generalized
// into one helper reused everywhere the spec calls for an opaque,
// ≥128-bit-entropy token.
package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// base32UserCode is restricted to characters that are hard to confuse when
// read aloud or typed by hand (no 0/O or 1/I, and no vowels), matching dexidp's
// validUserCharacters approach for human-entered codes.
const base32UserCode = "BCDFGHJKLMNPQRSTVWXZ23456789"

// AuthorizationCode returns a 32-character base62 opaque string, matching
// the wire format in spec.md §6 ("32-character base62, single-use").
func AuthorizationCode() (string, error) {
	return randomAlphabet(32, base62Alphabet)
}

// RefreshTokenSecret returns a 48-character base64url opaque string, per
// spec.md §6 ("Refresh token: 48-character base64url").
func RefreshTokenSecret() (string, error) {
	// base64url encodes 3 bytes as 4 chars; 36 bytes -> 48 chars, no padding.
	buf := make([]byte, 36)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: refresh token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// APIKey returns a visible 8-character identification prefix and a secret
// that is hashed at rest, per spec.md §6 ("API key: prefix (first 8 chars
// visible for identification) + secret (hashed at rest)").
func APIKey() (prefix, secret string, err error) {
	prefix, err = randomAlphabet(8, base62Alphabet)
	if err != nil {
		return "", "", err
	}
	secret, err = randomAlphabet(40, base62Alphabet)
	if err != nil {
		return "", "", err
	}
	return prefix, secret, nil
}

// BackupCode returns a 10-character human-typeable one-time code, per
// spec.md §4.6 ("10 x 10-char one-time codes").
func BackupCode() (string, error) {
	return randomAlphabet(10, base32UserCode)
}

// TOTPSecret returns a 160-bit base32 secret suitable for RFC 6238 TOTP
// enrollment, per spec.md §4.6.
func TOTPSecret() (string, error) {
	buf := make([]byte, 20) // 160 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: totp secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// NumericOTP returns an n-digit numeric one-time code for SMS/email
// factors, per spec.md §4.6 ("a 6-digit OTP").
func NumericOTP(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("idgen: digits must be positive")
	}
	buf := make([]byte, digits)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: numeric otp: %w", err)
	}
	var b strings.Builder
	b.Grow(digits)
	for _, c := range buf {
		b.WriteByte('0' + c%10)
	}
	return b.String(), nil
}

// Hash returns the SHA-256 hex digest of secret. Tokens are never persisted
// in plaintext (spec.md §3 Token invariant); this is the hash stored and
// compared against instead.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomAlphabet(n int, alphabet string) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: random alphabet: %w", err)
	}
	out := make([]byte, n)
	al := len(alphabet)
	for i, c := range buf {
		out[i] = alphabet[int(c)%al]
	}
	return string(out), nil
}
