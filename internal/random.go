package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// TokenID is the 128-bit random session identifier carried as the jti claim.
type TokenID [16]byte

// NewTokenID returns a fresh random TokenID.
func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (id TokenID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseTokenID decodes a jti produced by TokenID.String.
func ParseTokenID(s string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.Strict().DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid token id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewJTI returns the string form of a fresh TokenID.
func NewJTI() (string, error) {
	id, err := NewTokenID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
