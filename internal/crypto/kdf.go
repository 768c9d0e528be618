// Package crypto provides the vault's key-derivation, authenticated
// encryption, and secret-zeroization primitives. Nothing in this package
// persists anything to disk — it only ever operates on bytes already in
// memory.
package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, fixed per spec.md §4.1 (OWASP recommended minimums).
const (
	KDFTime    = 3
	KDFMemory  = 64 * 1024 // 64 MiB, in KiB units for argon2.IDKey
	KDFThreads = 4
	KDFKeyLen  = 32 // 256-bit master key
	SaltLen    = 16
)

// KDFParams is the persisted form of the Argon2id tuning knobs, stored
// alongside the salt in wallet.json so a future version of this binary can
// detect a parameter change without breaking existing vaults.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory_kib"`
	Threads uint8  `json:"threads"`
	KeyLen  uint32 `json:"key_len"`
}

// DefaultKDFParams returns the current fixed tuning.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:    KDFTime,
		Memory:  KDFMemory,
		Threads: KDFThreads,
		KeyLen:  KDFKeyLen,
	}
}

// NewSalt draws a fresh random per-vault salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveMasterKey runs Argon2id over the passphrase under the given salt and
// parameters, returning a candidate master key. Derivation is deliberately
// slow (~100-500ms) and must never be called while holding the vault's
// exclusive lock — see spec.md §5.
func DeriveMasterKey(passphrase []byte, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}
