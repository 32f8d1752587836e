package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/entativa/id/errs"
)

// RSAKeyBits is the modulus size for generated signing keys, matching
// gourdiantoken's doc-comment recommendation of a 2048-bit minimum.
const RSAKeyBits = 2048

type signingKey struct {
	kid       string
	private   *rsa.PrivateKey
	createdAt time.Time
	retired   bool
}

// Keyring is TokenService's RS256 keyring indexed by kid, per spec.md §4.4
// ("maintaining a keyring indexed by kid; signers pick the newest kid,
// verifiers try any kid present"). Access is synchronized with a
// sync.RWMutex per SPEC_FULL.md §5: read-locked on sign/verify, write-locked
// only when a key is added (NewKeyring, RotateSigningKey), retired or pruned.
type Keyring struct {
	mu   sync.RWMutex
	keys []*signingKey
}

// NewKeyring generates an initial signing key and returns the keyring.
func NewKeyring() (*Keyring, error) {
	kr := &Keyring{}
	if _, err := kr.generate(); err != nil {
		return nil, err
	}
	return kr, nil
}

func (kr *Keyring) generate() (*signingKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "generate RSA signing key", err)
	}
	sum := sha256.Sum256(priv.PublicKey.N.Bytes())
	key := &signingKey{kid: hex.EncodeToString(sum[:8]), private: priv, createdAt: time.Now().UTC()}
	kr.mu.Lock()
	kr.keys = append(kr.keys, key)
	kr.mu.Unlock()
	return key, nil
}

// Signer returns the newest non-retired key, used to sign new tokens.
func (kr *Keyring) Signer() (kid string, key *rsa.PrivateKey, err error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	for i := len(kr.keys) - 1; i >= 0; i-- {
		if !kr.keys[i].retired {
			return kr.keys[i].kid, kr.keys[i].private, nil
		}
	}
	return "", nil, errs.New(errs.Fatal, "no usable signing key")
}

// Verifier returns the public key for kid, regardless of retirement, since
// verifiers must accept any kid still within its token's lifetime.
func (kr *Keyring) Verifier(kid string) (*rsa.PublicKey, bool) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	for _, k := range kr.keys {
		if k.kid == kid {
			return &k.private.PublicKey, true
		}
	}
	return nil, false
}

// RotateSigningKey generates a new key and appends it as the signer;
// previously issued tokens remain verifiable under their original kid.
// Takes the keyring's write lock for the swap, per spec.md §5.
func (kr *Keyring) RotateSigningKey() (kid string, err error) {
	key, err := kr.generate()
	if err != nil {
		return "", err
	}
	return key.kid, nil
}

// RetireKey marks kid as no longer eligible to sign new tokens without
// removing its public half, so in-flight tokens stay verifiable.
func (kr *Keyring) RetireKey(kid string) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	for _, k := range kr.keys {
		if k.kid == kid {
			k.retired = true
		}
	}
}

// PruneOlderThan drops keys created before cutoff, for CleanupExpired.
// Never prunes the current signer or the newest key even if they are old.
func (kr *Keyring) PruneOlderThan(cutoff time.Time) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	if len(kr.keys) <= 1 {
		return
	}
	signer := -1
	for i := len(kr.keys) - 1; i >= 0; i-- {
		if !kr.keys[i].retired {
			signer = i
			break
		}
	}
	kept := kr.keys[:0:0]
	for i, k := range kr.keys {
		isNewest := i == len(kr.keys)-1
		if isNewest || i == signer || k.createdAt.After(cutoff) {
			kept = append(kept, k)
		}
	}
	kr.keys = kept
}

// JWKS builds the public JSON Web Key Set for every key still present in
// the keyring (retired keys included, so verifiers outside this process can
// still validate tokens signed before rotation), per SPEC_FULL.md §4.4.
func (kr *Keyring) JWKS() *jose.JSONWebKeySet {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	set := &jose.JSONWebKeySet{}
	for _, k := range kr.keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       &k.private.PublicKey,
			KeyID:     k.kid,
			Algorithm: "RS256",
			Use:       "sig",
		})
	}
	return set
}
