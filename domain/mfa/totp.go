package mfa

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// TOTPPeriod and TOTPDigits are RFC 6238's widest-compatible defaults,
// per SPEC_FULL.md §4.6 ("30-second step, 6 digits, HMAC-SHA1").
const (
	TOTPPeriod = 30 * time.Second
	TOTPDigits = 6
	// totpSkew tolerates one adjacent step of clock drift in either
	// direction, matching the verification window authenticator apps
	// assume.
	totpSkew = 1
)

// totpAt generates the RFC 6238 code for secret (base32, no padding) at the
// time step containing t. Grounded on the hand-rolled HMAC-SHA1 TOTP
// generator in mateoblack-sentinel's mfa package — no third-party TOTP
// library appears anywhere in the example pack, and that repo's own
// implementation is itself stdlib-only, so this follows the same approach
// rather than introducing one unilaterally.
func totpAt(secret string, t time.Time) (string, error) {
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}
	counter := uint64(t.Unix()) / uint64(TOTPPeriod.Seconds())
	return hotp(key, counter, TOTPDigits), nil
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	secret = strings.TrimRight(secret, "=")
	if mod := len(secret) % 8; mod != 0 {
		secret += strings.Repeat("=", 8-mod)
	}
	return base32.StdEncoding.DecodeString(secret)
}

// hotp computes the RFC 4226 HOTP value for key at counter.
func hotp(key []byte, counter uint64, digits int) string {
	counterBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(counterBytes, counter)

	h := hmac.New(sha1.New, key)
	h.Write(counterBytes)
	sum := h.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	divisor := uint32(1)
	for i := 0; i < digits; i++ {
		divisor *= 10
	}
	return fmt.Sprintf("%0*d", digits, code%divisor)
}

// VerifyTOTP checks code against secret, tolerating one adjacent time step
// of clock skew either side of now.
func VerifyTOTP(secret, code string, now time.Time) (bool, error) {
	for i := -totpSkew; i <= totpSkew; i++ {
		step := now.Add(time.Duration(i) * TOTPPeriod)
		expected, err := totpAt(secret, step)
		if err != nil {
			return false, err
		}
		if expected == code {
			return true, nil
		}
	}
	return false, nil
}

// OTPAuthURI builds the otpauth:// provisioning URI authenticator apps
// scan, per SPEC_FULL.md §4.6.
func OTPAuthURI(issuer, accountName, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		uriEscape(issuer), uriEscape(accountName), secret, uriEscape(issuer), TOTPDigits, int(TOTPPeriod.Seconds()))
}

func uriEscape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, " ", "%20"), ":", "%3A")
}
