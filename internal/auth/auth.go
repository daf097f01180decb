// Package auth implements the single optional shared auth secret: a
// bcrypt hash compared against on AUTH, never the plaintext secret held
// in memory.
package auth

import "golang.org/x/crypto/bcrypt"

// Hash bcrypt-hashes secret for storage in ServerConfig.Auth.SecretHash.
func Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verifier checks a presented AUTH secret against a configured bcrypt
// hash. A zero-value Verifier (empty hash) has auth disabled: every
// connection is already authenticated.
type Verifier struct {
	hash string
}

// NewVerifier builds a Verifier from a bcrypt hash produced by Hash.
// An empty hash disables authentication entirely.
func NewVerifier(hash string) *Verifier {
	return &Verifier{hash: hash}
}

// Required reports whether connections must AUTH before running other
// commands.
func (v *Verifier) Required() bool {
	return v != nil && v.hash != ""
}

// Check compares secret against the configured hash.
func (v *Verifier) Check(secret string) bool {
	if v == nil || v.hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(secret)) == nil
}
