package wallet

import "errors"

// Error taxonomy per the core's error handling design. Callers switch on
// these with errors.Is; none of them ever wrap a decrypted secret.
var (
	// ErrWalletLocked is returned by any operation that requires Unlocked
	// when the wallet is not currently unlocked.
	ErrWalletLocked = errors.New("wallet: locked")

	// ErrBadPassphrase is returned when AEAD verification fails during
	// unlock — deliberately indistinguishable from a tampered verification
	// blob beyond what the integrity check already reveals.
	ErrBadPassphrase = errors.New("wallet: bad passphrase")

	// ErrCorrupted is returned only for structural parse failures of the
	// on-disk vault document, never for AEAD authentication failures.
	ErrCorrupted = errors.New("wallet: corrupted vault file")

	ErrAlreadyInitialised = errors.New("wallet: already initialised")
	ErrNotInitialised     = errors.New("wallet: not initialised")

	ErrIntegrationNotFound     = errors.New("wallet: integration not found")
	ErrCredentialNotFound      = errors.New("wallet: credential not found")
	ErrDuplicateIntegrationKey = errors.New("wallet: integration key already in use")
	ErrInvalidIntegrationKey   = errors.New("wallet: integration key must match [a-z0-9][a-z0-9-]*")
)
