package crypto

import "errors"

// ErrDecryptionFailed is returned for any AEAD open failure: wrong
// passphrase, corrupted ciphertext, or tampered AAD. Callers must never try
// to tell these apart.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")
