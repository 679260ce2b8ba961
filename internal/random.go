package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	refreshSecretSize = 32
	resetSecretSize   = 32
)

// ErrMalformedSecret is returned when a presented secret cannot be decoded.
var ErrMalformedSecret = errors.New("malformed secret")

// NewRefreshSecret returns an opaque refresh credential carrying 256 bits of
// entropy, encoded as unpadded base64url.
func NewRefreshSecret() (string, error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// NewResetToken returns a single-use password reset token.
func NewResetToken() (string, error) {
	var secret [resetSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// CheckSecret rejects values that could not have been produced by
// NewRefreshSecret or NewResetToken, so lookups never hash arbitrary input.
func CheckSecret(raw string) error {
	if raw == "" {
		return ErrMalformedSecret
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(decoded) != refreshSecretSize {
		return ErrMalformedSecret
	}
	return nil
}

// HashSecret is the one-way digest stored in place of a raw secret.
func HashSecret(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

// HashSecretHex is HashSecret rendered as lowercase hex, used as a store key.
func HashSecretHex(raw string) string {
	sum := HashSecret(raw)
	return hex.EncodeToString(sum[:])
}

// Fingerprint is a short, log-safe identifier for a secret.
func Fingerprint(raw string) string {
	if raw == "" {
		return ""
	}
	return HashSecretHex(raw)[:8]
}

// NewRecordID returns a time-ordered identifier for stored records.
func NewRecordID() string {
	return ulid.Make().String()
}

// NewTokenID returns a random jti.
func NewTokenID() string {
	return uuid.NewString()
}

// NewAccountID returns a random account identifier.
func NewAccountID() string {
	return uuid.NewString()
}
