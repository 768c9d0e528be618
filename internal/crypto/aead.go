package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// NonceLen is the standard 96-bit GCM nonce size.
const NonceLen = 12

// Seal encrypts plaintext under key with AES-256-GCM, returning
// nonce‖ciphertext‖tag as a single blob (the form persisted in wallet.json).
// aad, if non-nil, is authenticated but not encrypted — used to bind a blob
// to its position (e.g. "verify" vs "body") so one can't be swapped for the
// other.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, NonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := gcm.Seal(nonce, nonce, plaintext, aad)
	return out, nil
}

// Open reverses Seal. Returns ErrDecryptionFailed on any auth failure or
// malformed blob — callers must never distinguish "bad key" from "corrupt
// ciphertext" from the error, since that would be an oracle.
func Open(key, blob, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	if len(blob) < NonceLen {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := blob[:NonceLen], blob[NonceLen:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
