package ledger

import (
	"fmt"
	"unicode"
)

// maxPrincipalLen bounds principal text so that keys stay cheap to hash and log.
const maxPrincipalLen = 128

// Principal is an opaque, host-authenticated account identifier.
type Principal string

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// ParsePrincipal validates s and returns it as a Principal.
func ParsePrincipal(s string) (Principal, error) {
	p := Principal(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Validate checks that p is non-empty, bounded and free of spaces and
// control characters.
func (p Principal) Validate() error {
	if p == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPrincipal)
	}
	if len(p) > maxPrincipalLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidPrincipal, maxPrincipalLen)
	}
	for _, r := range string(p) {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: contains %q", ErrInvalidPrincipal, r)
		}
	}
	return nil
}
