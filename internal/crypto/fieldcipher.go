package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// AlgAES256GCM is the algorithm tag carried by every envelope.
	AlgAES256GCM = "AES-256-GCM"

	nonceSize = 12
)

// ErrDecryptionFailed covers authentication-tag mismatch and malformed
// envelopes. Callers must never see plaintext-looking garbage instead.
var ErrDecryptionFailed = errors.New("decryption failed")

// Envelope is the self-describing encrypted representation of one field
// value. It carries its own IV so each field is independently decryptable.
type Envelope struct {
	IV  string `json:"iv"`  // base64 nonce
	CT  string `json:"ct"`  // base64 ciphertext||tag
	Alg string `json:"alg"` // always "AES-256-GCM"
}

// EncryptValue encrypts a string value under key with AES-256-GCM.
// The nonce is cryptographically random per call; nonce reuse under the
// same key is a correctness violation, so it is never derived or counted.
func EncryptValue(key []byte, value string) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ct := aesGCM.Seal(nil, nonce, []byte(value), nil)
	return &Envelope{
		IV:  base64.StdEncoding.EncodeToString(nonce),
		CT:  base64.StdEncoding.EncodeToString(ct),
		Alg: AlgAES256GCM,
	}, nil
}

// DecryptValue reverses EncryptValue. A nil envelope decrypts to the empty
// string without error (absent value). Any malformed input or tag mismatch
// returns ErrDecryptionFailed.
func DecryptValue(key []byte, env *Envelope) (string, error) {
	if env == nil {
		return "", nil
	}

	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceSize {
		return "", ErrDecryptionFailed
	}
	ct, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	pt, err := aesGCM.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}
