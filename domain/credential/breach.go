package credential

// LocalBlocklist is the default BreachOracle named in spec.md §4.2 ("Breach
// oracle is pluggable and defaults to a local blocklist"), seeded from a
// small embedded list of known-breached passwords. Candidates arrive
// pre-hashed (SHA-256 hex) so the blocklist itself never stores plaintext.
type LocalBlocklist struct {
	hashes map[string]struct{}
}

// knownBreachedPasswords are a handful of passwords that appear at the top
// of every public breach-corpus frequency list.
var knownBreachedPasswords = []string{
	"password123", "qwerty123456", "123456789", "letmein123", "iloveyou123",
	"admin12345", "welcome123", "monkey12345", "dragon12345", "football123",
}

// NewLocalBlocklist builds a LocalBlocklist seeded from knownBreachedPasswords.
func NewLocalBlocklist() *LocalBlocklist {
	b := &LocalBlocklist{hashes: make(map[string]struct{}, len(knownBreachedPasswords))}
	for _, p := range knownBreachedPasswords {
		b.hashes[hashCandidate(p)] = struct{}{}
	}
	return b
}

// IsBreached implements BreachOracle.
func (b *LocalBlocklist) IsBreached(hashHex string) bool {
	_, ok := b.hashes[hashHex]
	return ok
}
