// Package wallet implements the core's state machine: the explicit
// {Loading, NotInitialised, Locked, Unlocked} lifecycle over the on-disk
// encrypted vault document, plus the integration and credential registries
// it carries once unlocked.
package wallet

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/mcpvault/mcpvault/internal/crypto"
)

var verifyAAD = []byte("verify")
var bodyAAD = []byte("body")

var integrationKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Wallet is the process-local handle to one on-disk vault. It owns the
// master key exclusively: no other component retains it, they borrow it for
// the duration of one call. Safe for concurrent use; writes are serialised,
// reads may proceed concurrently with each other but never with a write.
type Wallet struct {
	mu sync.RWMutex

	dataDir       string
	autoLockAfter time.Duration

	state      State
	salt       []byte
	kdfParams  crypto.KDFParams
	masterKey  *crypto.Sealed
	unlockedAt time.Time

	registries *registriesDoc
}

// New creates a wallet handle bound to dataDir. The returned wallet starts
// in StateLoading; call Load to inspect the on-disk layout and settle into
// NotInitialised or Locked. autoLockAfter of 0 disables auto-lock.
func New(dataDir string, autoLockAfter time.Duration) *Wallet {
	return &Wallet{
		dataDir:       dataDir,
		autoLockAfter: autoLockAfter,
		state:         StateLoading,
	}
}

// Load inspects the data directory and transitions out of StateLoading.
func (w *Wallet) Load() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := os.Stat(walletPath(w.dataDir))
	switch {
	case err == nil:
		w.state = StateLocked
	case os.IsNotExist(err):
		w.state = StateNotInitialised
	default:
		return fmt.Errorf("stat vault file: %w", err)
	}
	return nil
}

// State reports the current lifecycle state.
func (w *Wallet) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Initialise requires StateNotInitialised. It generates a fresh salt,
// derives the master key, writes a random verification blob encrypted
// under it, and writes an empty registries document. Leaves the wallet
// Locked — the caller must Unlock with the same passphrase to proceed.
func (w *Wallet) Initialise(passphrase []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateNotInitialised {
		return ErrAlreadyInitialised
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	params := crypto.DefaultKDFParams()
	key := crypto.DeriveMasterKey(passphrase, salt, params)
	defer zero(key)

	verifyPlaintext := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, verifyPlaintext); err != nil {
		return fmt.Errorf("generate verification plaintext: %w", err)
	}
	verifyBlob, err := crypto.Seal(key, verifyPlaintext, verifyAAD)
	if err != nil {
		return fmt.Errorf("seal verification blob: %w", err)
	}

	doc := newRegistriesDoc()
	bodyBlob, err := sealRegistries(key, doc)
	if err != nil {
		return err
	}

	vf := &vaultFile{
		Version: vaultFileVersion,
		KDF:     kdfSection{Salt: salt, Params: params},
		Verify:  verifyBlob,
		Body:    bodyBlob,
	}
	if err := writeVaultFile(w.dataDir, vf); err != nil {
		return err
	}

	w.state = StateLocked
	w.salt = salt
	w.kdfParams = params
	return nil
}

// Unlock requires StateLocked. It derives a candidate key from passphrase
// and the persisted salt, verifies it against the verification blob, and —
// only on success — decrypts the registries document and transitions to
// Unlocked.
func (w *Wallet) Unlock(passphrase []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateLocked {
		if w.state == StateUnlocked {
			return nil
		}
		return ErrNotInitialised
	}

	vf, err := readVaultFile(w.dataDir)
	if err != nil {
		return err
	}

	key := crypto.DeriveMasterKey(passphrase, vf.KDF.Salt, vf.KDF.Params)

	if _, err := crypto.Open(key, vf.Verify, verifyAAD); err != nil {
		zero(key)
		return ErrBadPassphrase
	}

	doc, err := openRegistries(key, vf.Body)
	if err != nil {
		zero(key)
		return err
	}

	w.salt = vf.KDF.Salt
	w.kdfParams = vf.KDF.Params
	w.masterKey = crypto.NewSealed(key)
	w.registries = doc
	w.state = StateUnlocked
	w.unlockedAt = time.Now()
	return nil
}

// UnlockWithMasterKey requires StateLocked. It adopts an already-derived
// master key — handed down by the session manager after Resume — instead
// of deriving one from a passphrase, so a headless vaultd process can
// restore an unlocked wallet without ever seeing the passphrase. key is
// borrowed for the duration of the call; the caller retains ownership of
// the Sealed container it came from.
func (w *Wallet) UnlockWithMasterKey(sealed *crypto.Sealed) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateLocked {
		if w.state == StateUnlocked {
			return nil
		}
		return ErrNotInitialised
	}

	vf, err := readVaultFile(w.dataDir)
	if err != nil {
		return err
	}

	var doc *registriesDoc
	var openErr error
	sealed.Borrow(func(key []byte) {
		if _, err := crypto.Open(key, vf.Verify, verifyAAD); err != nil {
			openErr = ErrBadPassphrase
			return
		}
		doc, openErr = openRegistries(key, vf.Body)
	})
	if openErr != nil {
		return openErr
	}

	w.salt = vf.KDF.Salt
	w.kdfParams = vf.KDF.Params
	key := make([]byte, sealed.Len())
	sealed.Borrow(func(b []byte) { copy(key, b) })
	w.masterKey = crypto.NewSealed(key)
	w.registries = doc
	w.state = StateUnlocked
	w.unlockedAt = time.Now()
	return nil
}

// Lock transitions to Locked from any state except NotInitialised, which it
// leaves unchanged, and overwrites the in-memory master key. It is always
// safe to call and never fails.
func (w *Wallet) Lock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lockLocked()
}

func (w *Wallet) lockLocked() {
	if w.masterKey != nil {
		w.masterKey.Destroy()
		w.masterKey = nil
	}
	w.registries = nil
	if w.state != StateNotInitialised {
		w.state = StateLocked
	}
}

// Save requires StateUnlocked. It re-encrypts the registries document under
// the current master key and writes the vault file atomically.
func (w *Wallet) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saveLocked()
}

func (w *Wallet) saveLocked() error {
	if w.state != StateUnlocked {
		return ErrWalletLocked
	}

	var bodyBlob []byte
	var sealErr error
	w.masterKey.Borrow(func(key []byte) {
		bodyBlob, sealErr = sealRegistries(key, w.registries)
	})
	if sealErr != nil {
		return sealErr
	}

	vf, err := readVaultFile(w.dataDir)
	if err != nil {
		return err
	}
	vf.Body = bodyBlob

	return writeVaultFile(w.dataDir, vf)
}

// Reset deletes all vault artefacts and returns to StateNotInitialised,
// regardless of the current state.
func (w *Wallet) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lockLocked()
	if err := removeVaultArtefacts(w.dataDir); err != nil {
		return err
	}
	w.state = StateNotInitialised
	w.salt = nil
	return nil
}

// AutoLockCheck performs Lock() if the wallet has been unlocked for at
// least the configured idle timeout as of now. A timeout of 0 disables
// auto-lock entirely. The core never schedules this itself — it is driven
// by an external tick from the caller (the desktop shell's timer).
func (w *Wallet) AutoLockCheck(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked || w.autoLockAfter <= 0 {
		return
	}
	if now.Sub(w.unlockedAt) >= w.autoLockAfter {
		w.lockLocked()
	}
}

// MasterKey borrows the current master key for the duration of fn. It must
// only be called by the session manager when minting a new session, and
// the caller must not retain the slice past fn's return. Returns
// ErrWalletLocked if not currently Unlocked.
func (w *Wallet) MasterKey(fn func([]byte)) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != StateUnlocked {
		return ErrWalletLocked
	}
	w.masterKey.Borrow(fn)
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func sealRegistries(key []byte, doc *registriesDoc) ([]byte, error) {
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal registries: %w", err)
	}
	defer zero(plaintext)
	return crypto.Seal(key, plaintext, bodyAAD)
}

func openRegistries(key, blob []byte) (*registriesDoc, error) {
	plaintext, err := crypto.Open(key, blob, bodyAAD)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)

	var doc registriesDoc
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if doc.Integrations == nil {
		doc.Integrations = make(map[string]*IntegrationRecord)
	}
	if doc.Credentials == nil {
		doc.Credentials = make(map[string]*CredentialRecord)
	}
	return &doc, nil
}
