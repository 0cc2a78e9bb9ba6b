package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformedHash reports a stored hash that cannot be decoded. It is a
// configuration problem with the stored record, not a wrong secret.
var ErrMalformedHash = errors.New("malformed stored hash")

// Scheme selects the format used for newly produced password hashes.
type Scheme string

const (
	SchemeScrypt   Scheme = "scrypt"
	SchemeArgon2id Scheme = "argon2id"
)

// Config configures a Verifier.
type Config struct {
	Scheme Scheme
	Scrypt ScryptConfig
	Argon2 Argon2Config
}

// Verifier compares supplied secrets with stored hashes. It accepts salted
// scrypt hashes (hex, salt stored separately) and argon2id PHC strings (salt
// embedded). Receipts are always hashed with scrypt under the tenant receipt
// salt so the lookup key is deterministic.
type Verifier struct {
	scheme Scheme
	scrypt *Scrypt
	argon2 *Argon2

	dummyHash string
	dummySalt string
}

func NewVerifier(cfg Config) (*Verifier, error) {
	sc, err := NewScrypt(cfg.Scrypt)
	if err != nil {
		return nil, err
	}
	ar, err := NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}

	v := &Verifier{scheme: cfg.Scheme, scrypt: sc, argon2: ar}
	switch cfg.Scheme {
	case SchemeScrypt, SchemeArgon2id:
	default:
		return nil, fmt.Errorf("unsupported password scheme %q", cfg.Scheme)
	}

	secret, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	if v.dummyHash, v.dummySalt, err = v.Hash(secret); err != nil {
		return nil, err
	}
	return v, nil
}

// Verify reports whether secret matches storedHash. storedSalt is only used
// for scrypt hashes. Mismatch returns (false, nil); an undecodable stored
// value returns an error wrapping ErrMalformedHash.
func (v *Verifier) Verify(secret, storedHash, storedSalt string) (bool, error) {
	if IsPHC(storedHash) {
		return v.argon2.Verify(secret, storedHash)
	}
	return v.scrypt.Verify(secret, storedSalt, storedHash)
}

// VerifyDummy performs one comparison of the configured scheme against a
// hash no secret matches. Callers use it when no candidate record exists so
// the unknown-identity path costs the same as a wrong secret.
func (v *Verifier) VerifyDummy(secret string) {
	_, _ = v.Verify(secret, v.dummyHash, v.dummySalt)
}

// Hash produces a new stored hash for secret with the configured scheme.
// For scrypt a random salt is generated and returned; for argon2id the salt
// is embedded and the returned salt is empty.
func (v *Verifier) Hash(secret string) (hash, salt string, err error) {
	switch v.scheme {
	case SchemeArgon2id:
		hash, err = v.argon2.Hash(secret)
		return hash, "", err
	default:
		if salt, err = randomHex(16); err != nil {
			return "", "", err
		}
		hash, err = v.scrypt.Hash(secret, salt)
		return hash, salt, err
	}
}

// HashReceipt derives the lookup hash for a receipt under a tenant salt.
func (v *Verifier) HashReceipt(receipt, receiptSalt string) (string, error) {
	if receiptSalt == "" {
		return "", fmt.Errorf("%w: empty receipt salt", ErrMalformedHash)
	}
	return v.scrypt.Hash(receipt, receiptSalt)
}

// NewSalt returns a random hex salt suitable for users or tenant receipts.
func NewSalt() (string, error) {
	return randomHex(16)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
