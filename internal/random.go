package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	sessionIDSize = 32
	authTokenSize = 32
)

// NewSessionID returns 32 random bytes, base64url without padding. The value
// carries no tenant or user information.
func NewSessionID() (string, error) {
	var raw [sessionIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewAuthToken returns a hex token for long-lived staff auth tokens.
func NewAuthToken() (string, error) {
	var raw [authTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// NewReceipt returns a decimal receipt of the given length.
func NewReceipt(digits int) (string, error) {
	if digits < 10 || digits > 32 {
		return "", errors.New("invalid receipt length")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
