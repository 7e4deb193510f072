package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

const KeySize = 32 // AES-256

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// DeriveKey derives a 256-bit field-encryption key from the operator secret.
// A 64-character hex string is decoded directly as raw key material; any
// other non-empty string is hashed with SHA-256 down to 32 bytes.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is empty")
	}

	if hexKeyPattern.MatchString(secret) {
		key, err := hex.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode hex key: %w", err)
		}
		return key, nil
	}

	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}
