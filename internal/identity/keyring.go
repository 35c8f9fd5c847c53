package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned when a principal/secret pair does not match.
var ErrBadCredentials = errors.New("invalid principal or secret")

// Keyring maps principals to bcrypt hashes of their secrets.
type Keyring struct {
	hashes map[ledger.Principal][]byte
}

// Credential is one auth.principals entry. Principals are case-sensitive,
// which is why the config holds a list of entries rather than a map: viper
// lowercases map keys.
type Credential struct {
	Principal string `mapstructure:"principal"`
	Hash      string `mapstructure:"hash"`
}

// NewKeyring builds a Keyring from principal/bcrypt-hash entries.
func NewKeyring(entries []Credential) (*Keyring, error) {
	k := &Keyring{hashes: make(map[ledger.Principal][]byte, len(entries))}
	for _, e := range entries {
		p, err := ledger.ParsePrincipal(e.Principal)
		if err != nil {
			return nil, err
		}
		if _, dup := k.hashes[p]; dup {
			return nil, fmt.Errorf("principal %q listed twice", e.Principal)
		}
		if _, err := bcrypt.Cost([]byte(e.Hash)); err != nil {
			return nil, fmt.Errorf("principal %q: %w", e.Principal, err)
		}
		k.hashes[p] = []byte(e.Hash)
	}
	return k, nil
}

// Authenticate checks secret against the stored hash for p.
func (k *Keyring) Authenticate(p ledger.Principal, secret string) error {
	hash, ok := k.hashes[p]
	if !ok {
		// Burn comparable time so unknown principals are not distinguishable.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(secret))
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// Len returns the number of known principals.
func (k *Keyring) Len() int { return len(k.hashes) }

// HashSecret returns the bcrypt hash of secret for use in the keyring config.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// dummyHash is compared against when the principal is unknown.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("tokenledger-unknown-principal"), bcrypt.DefaultCost)
	return h
})
