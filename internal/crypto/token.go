package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const tokenEntropyBytes = 32

// NewActivationToken generates a high-entropy URL-safe activation token.
// The raw token is returned to the caller for out-of-band delivery and is
// never persisted; storage only ever sees HashToken(raw).
func NewActivationToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 of a raw token. A leaked database must
// not grant account takeover, so only this hash is stored.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
