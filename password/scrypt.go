package password

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ScryptConfig holds the cost parameters for salted scrypt hashes. Stored
// hashes do not carry their parameters, so every hash in a deployment must be
// produced and verified with the same values.
type ScryptConfig struct {
	N         int
	R         int
	P         int
	KeyLength int
}

// DefaultScryptConfig returns N=2^14, r=8, p=1 with a 64-byte key.
func DefaultScryptConfig() ScryptConfig {
	return ScryptConfig{N: 1 << 14, R: 8, P: 1, KeyLength: 64}
}

// Scrypt hashes secrets with an explicit salt and hex-encodes the result.
type Scrypt struct {
	config ScryptConfig
}

func NewScrypt(cfg ScryptConfig) (*Scrypt, error) {
	if cfg.N <= 1 || cfg.N&(cfg.N-1) != 0 {
		return nil, errors.New("scrypt N must be a power of two > 1")
	}
	if cfg.R < 1 || cfg.P < 1 {
		return nil, errors.New("scrypt r and p must be >= 1")
	}
	if cfg.KeyLength < 16 {
		return nil, errors.New("scrypt key length must be >= 16")
	}
	return &Scrypt{config: cfg}, nil
}

// Hash derives the hex-encoded key for secret under salt.
func (s *Scrypt) Hash(secret, salt string) (string, error) {
	key, err := s.derive(secret, salt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Verify recomputes the key for secret under salt and compares it with the
// stored hex value in constant time. A stored value that is not hex of the
// configured key length is reported as ErrMalformedHash.
func (s *Scrypt) Verify(secret, salt, encoded string) (bool, error) {
	stored, err := hex.DecodeString(encoded)
	if err != nil || len(stored) != s.config.KeyLength {
		return false, fmt.Errorf("%w: scrypt value is not %d hex bytes", ErrMalformedHash, s.config.KeyLength)
	}

	computed, err := s.derive(secret, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(computed, stored) == 1, nil
}

func (s *Scrypt) derive(secret, salt string) ([]byte, error) {
	return scrypt.Key([]byte(secret), []byte(salt), s.config.N, s.config.R, s.config.P, s.config.KeyLength)
}
