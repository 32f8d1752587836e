// Package credential implements C3 CredentialEvaluator: password/passphrase
// strength scoring, breach checking, and generation, per spec.md §4.2. No
// third-party scoring library appears anywhere in the example pack (the
// pack's only string-distance dependency, agnivade/levenshtein, is already
// spoken for by domain/handle's fuzzy match); this package is therefore
// built on stdlib math/crypto primitives, which is the justified exception
// DESIGN.md records for this component.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/big"
	"strings"
	"unicode"

	"github.com/entativa/id/errs"
)

// Strength is the ordinal bucket a numeric score maps to.
type Strength string

const (
	StrengthWeak       Strength = "weak"
	StrengthFair       Strength = "fair"
	StrengthMedium     Strength = "medium"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very-strong"
)

// MinPasswordEntropyBits and MinPassphraseEntropyBits are the acceptance
// floors named in spec.md §4.2.
const (
	MinPasswordEntropyBits   = 40
	MinPassphraseEntropyBits = 50
)

// Profile is the subject context used to penalize password substrings that
// trivially match the user's own identity, per spec.md §4.2.
type Profile struct {
	EmailLocalPart string
	FirstName      string
	LastName       string
	BirthYear      string
}

// Score is the full result of evaluating a password or passphrase.
type Score struct {
	Points      int
	EntropyBits float64
	Strength    Strength
	Accepted    bool
	Reasons     []string
}

// BreachOracle reports whether a candidate secret appears in a known-breach
// corpus. Implementations receive the SHA-256 hex digest, never plaintext.
type BreachOracle interface {
	IsBreached(hashHex string) bool
}

// Evaluator is C3 CredentialEvaluator.
type Evaluator struct {
	breach BreachOracle
}

// NewEvaluator wires an Evaluator over the given BreachOracle. Pass
// NewLocalBlocklist() for the default, spec.md-named "local blocklist".
func NewEvaluator(breach BreachOracle) *Evaluator {
	return &Evaluator{breach: breach}
}

// EvaluatePassword scores candidate per spec.md §4.2's password rules and
// rejects on breach hit.
func (e *Evaluator) EvaluatePassword(candidate string, profile Profile) (Score, error) {
	score := scorePassword(candidate, profile)
	if e.breach != nil && e.breach.IsBreached(hashCandidate(candidate)) {
		score.Accepted = false
		score.Reasons = append(score.Reasons, "appears in known-breach corpus")
		return score, errs.New(errs.Input, "password appears in a known data breach").WithCode("breached_password")
	}
	if !score.Accepted {
		return score, errs.New(errs.Input, "password does not meet minimum strength").WithCode("weak_password")
	}
	return score, nil
}

// EvaluatePassphrase scores candidate per spec.md §4.2's passphrase rules.
func (e *Evaluator) EvaluatePassphrase(candidate string) (Score, error) {
	score := scorePassphrase(candidate)
	if e.breach != nil && e.breach.IsBreached(hashCandidate(candidate)) {
		score.Accepted = false
		score.Reasons = append(score.Reasons, "appears in known-breach corpus")
		return score, errs.New(errs.Input, "passphrase appears in a known data breach").WithCode("breached_password")
	}
	if !score.Accepted {
		return score, errs.New(errs.Input, "passphrase does not meet minimum strength").WithCode("weak_password")
	}
	return score, nil
}

func hashCandidate(candidate string) string {
	sum := sha256.Sum256([]byte(candidate))
	return hex.EncodeToString(sum[:])
}

var keyboardRuns = []string{"qwerty", "asdfgh", "zxcvbn", "123456", "12345", "098765"}

func scorePassword(candidate string, profile Profile) Score {
	points := 0
	var reasons []string

	l := len(candidate)
	lengthPoints := l
	if lengthPoints > 40 {
		lengthPoints = 40
	}
	if lengthPoints < 8 {
		lengthPoints = 0
	}
	points += lengthPoints

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	poolSize := 0
	for _, present := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if present {
			points += 5
		}
	}
	if hasLower {
		poolSize += 26
	}
	if hasUpper {
		poolSize += 26
	}
	if hasDigit {
		poolSize += 10
	}
	if hasSymbol {
		poolSize += 33
	}
	if poolSize == 0 {
		poolSize = 1
	}

	entropy := float64(l) * math.Log2(float64(poolSize))

	lower := strings.ToLower(candidate)
	if isDictionaryHit(lower) {
		points -= 20
		reasons = append(reasons, "contains a dictionary word")
	}
	for _, run := range keyboardRuns {
		if strings.Contains(lower, run) {
			points -= 15
			reasons = append(reasons, "contains a keyboard run")
			break
		}
	}
	if hasRepeatedRun(candidate, 3) {
		points -= 10
		reasons = append(reasons, "contains a repeated-character run")
	}
	for _, frag := range identityFragments(profile) {
		if len(frag) >= 3 && strings.Contains(lower, frag) {
			points -= 15
			reasons = append(reasons, "contains an identity substring")
			break
		}
	}

	if points < 0 {
		points = 0
	}
	if points > 100 {
		points = 100
	}

	return Score{
		Points:      points,
		EntropyBits: entropy,
		Strength:    strengthOf(points),
		Accepted:    entropy >= MinPasswordEntropyBits,
		Reasons:     reasons,
	}
}

// passphraseDicewarePool is the assumed per-word dictionary size for
// passphrase entropy estimation: the Diceware convention of 7776 words
// (~12.9 bits/word). Estimating from the embedded curated lists instead
// would punish every passphrase whose words those short lists happen not
// to contain.
const passphraseDicewarePool = 7776

func scorePassphrase(candidate string) Score {
	words := splitPassphraseWords(candidate)
	var reasons []string
	points := 0

	if len(words) == 0 {
		return Score{Strength: StrengthWeak, Accepted: false, Reasons: []string{"empty passphrase"}}
	}

	points += len(words) * 8

	unique := make(map[string]struct{}, len(words))
	totalLen := 0
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
		totalLen += len(w)
	}
	uniqueRatio := float64(len(unique)) / float64(len(words))
	points += int(uniqueRatio * 20)

	meanLen := float64(totalLen) / float64(len(words))
	points += int(meanLen)

	if isAlphabeticalOrder(words) {
		points -= 15
		reasons = append(reasons, "words are in alphabetical order")
	}
	if isCommonPhraseSubstring(strings.ToLower(candidate)) {
		points -= 20
		reasons = append(reasons, "contains a known common phrase")
	}

	if points < 0 {
		points = 0
	}
	if points > 100 {
		points = 100
	}

	// Entropy of a passphrase is estimated from the dictionary pool size
	// rather than the character pool, since the dictionary space is much
	// smaller (spec.md: "higher than passwords because dictionary space
	// is smaller").
	entropy := float64(len(words)) * math.Log2(passphraseDicewarePool)

	return Score{
		Points:      points,
		EntropyBits: entropy,
		Strength:    strengthOf(points),
		Accepted:    entropy >= MinPassphraseEntropyBits,
		Reasons:     reasons,
	}
}

// splitPassphraseWords treats any non-alphanumeric run as a word
// separator, so "river-obsidian-maple" and "river obsidian maple" score
// identically.
func splitPassphraseWords(candidate string) []string {
	return strings.FieldsFunc(candidate, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func strengthOf(points int) Strength {
	switch {
	case points >= 85:
		return StrengthVeryStrong
	case points >= 65:
		return StrengthStrong
	case points >= 45:
		return StrengthMedium
	case points >= 25:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

func hasRepeatedRun(s string, max int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run > max {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func isAlphabeticalOrder(words []string) bool {
	if len(words) < 2 {
		return false
	}
	for i := 1; i < len(words); i++ {
		if strings.ToLower(words[i-1]) > strings.ToLower(words[i]) {
			return false
		}
	}
	return true
}

func identityFragments(p Profile) []string {
	var out []string
	for _, f := range []string{p.EmailLocalPart, p.FirstName, p.LastName, p.BirthYear} {
		if f != "" {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

// GenerateWords returns a generated passphrase of n words drawn from the
// curated wordlists, with an optional numeric infix and separator, per
// spec.md §4.2's "Generation" requirement. It resamples, up to 10 attempts,
// until the result passes its own strength check, and returns an error if no
// attempt passes, so it never returns a passphrase failing that check.
func GenerateWords(n int, separator string, numericInfix bool) (string, error) {
	if n <= 0 {
		n = 4
	}
	if separator == "" {
		separator = "-"
	}
	e := NewEvaluator(NewLocalBlocklist())
	for attempt := 0; attempt < 10; attempt++ {
		words := make([]string, 0, n)
		for i := 0; i < n; i++ {
			w, err := pickRandom(wordlistFor(i))
			if err != nil {
				return "", err
			}
			words = append(words, w)
		}
		if numericInfix {
			digits, err := randomDigits(2)
			if err != nil {
				return "", err
			}
			words = append(words, digits)
		}
		candidate := strings.Join(words, separator)
		if score, err := e.EvaluatePassphrase(candidate); err == nil && score.Accepted {
			return candidate, nil
		}
	}
	return "", errs.New(errs.Fatal, "failed to generate an acceptable passphrase")
}

func wordlistFor(i int) []string {
	if i%2 == 0 {
		return commonWordlist
	}
	return secureWordlist
}

func pickRandom(list []string) (string, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return "", errs.Wrap(errs.Fatal, "generate random index", err)
	}
	return list[idx.Int64()], nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", errs.Wrap(errs.Fatal, "generate random digit", err)
		}
		b.WriteString(d.String())
	}
	return b.String(), nil
}
