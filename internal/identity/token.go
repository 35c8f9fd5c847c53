package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

// CallerClaims are the JWT claims of a caller token. Subject and Principal
// both carry the authenticated principal.
type CallerClaims struct {
	jwt.RegisteredClaims
	Principal string `json:"principal"`
}

// Caller returns the principal the token attests.
func (c *CallerClaims) Caller() ledger.Principal {
	return ledger.Principal(c.Principal)
}

// CallerTokenIssuer issues and verifies caller tokens signed with RS256.
type CallerTokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
}

// NewCallerTokenIssuer creates a CallerTokenIssuer.
//
//	issuer: the "iss" claim value; typically the ledger's base URL.
//	ttl: token lifetime (default: 1 hour).
func NewCallerTokenIssuer(key *rsa.PrivateKey, issuer string, ttl time.Duration) *CallerTokenIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &CallerTokenIssuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuer,
		ttl:    ttl,
	}
}

// Issue creates a signed token attesting principal.
func (t *CallerTokenIssuer) Issue(principal ledger.Principal) (string, error) {
	if err := principal.Validate(); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   principal.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Principal: principal.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign caller token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a caller token, returning its claims on success.
func (t *CallerTokenIssuer) Verify(tokenStr string) (*CallerClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CallerClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.pub, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify caller token: %w", err)
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid caller token claims")
	}
	if claims.Principal == "" || claims.Principal != claims.Subject {
		return nil, fmt.Errorf("caller token subject mismatch")
	}
	if err := claims.Caller().Validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *CallerTokenIssuer) TTL() time.Duration { return t.ttl }
