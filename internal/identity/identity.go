// Package identity attests the caller behind every ledger call.
//
// It provides:
//   - LoadOrCreateKey: loads or generates the RSA key that signs caller tokens
//   - CallerTokenIssuer: issues and verifies RS256 caller tokens
//   - Keyring: bcrypt-hashed principal secrets exchanged for tokens
//   - RequireCaller: Gin middleware enforcing a Bearer caller token
package identity
