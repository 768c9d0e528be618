package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/mcpvault/mcpvault/internal/crypto"
)

// AddIntegration inserts a new integration record. Requires Unlocked.
// Enforces I2 (unique key) and the key grammar from spec.md §3.
func (w *Wallet) AddIntegration(rec *IntegrationRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked {
		return ErrWalletLocked
	}
	if !integrationKeyPattern.MatchString(rec.Key) {
		return ErrInvalidIntegrationKey
	}
	if _, exists := w.registries.Integrations[rec.Key]; exists {
		return ErrDuplicateIntegrationKey
	}

	w.registries.Integrations[rec.Key] = rec
	return w.saveLocked()
}

// GetIntegration returns a copy of the named integration record.
func (w *Wallet) GetIntegration(key string) (*IntegrationRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateUnlocked {
		return nil, ErrWalletLocked
	}
	rec, ok := w.registries.Integrations[key]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListIntegrations returns every integration record, unordered.
func (w *Wallet) ListIntegrations() ([]*IntegrationRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateUnlocked {
		return nil, ErrWalletLocked
	}
	out := make([]*IntegrationRecord, 0, len(w.registries.Integrations))
	for _, rec := range w.registries.Integrations {
		out = append(out, rec)
	}
	return out, nil
}

// RemoveIntegration deletes an integration record. It does not touch the
// bound credential, which may still be referenced elsewhere.
func (w *Wallet) RemoveIntegration(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked {
		return ErrWalletLocked
	}
	if _, ok := w.registries.Integrations[key]; !ok {
		return ErrIntegrationNotFound
	}
	delete(w.registries.Integrations, key)
	return w.saveLocked()
}

// SetIntegrationStatus updates status and replaces the last-error detail
// with lastError; it also stamps last-synced-at.
func (w *Wallet) SetIntegrationStatus(key string, status IntegrationStatus, lastError string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked {
		return ErrWalletLocked
	}
	rec, ok := w.registries.Integrations[key]
	if !ok {
		return ErrIntegrationNotFound
	}
	rec.Status = status
	rec.LastError = lastError
	rec.LastSyncedAt = time.Now()
	return w.saveLocked()
}

// BindCredential attaches an existing credential to an integration,
// enforcing I1 (an active integration's credential_id must resolve).
func (w *Wallet) BindCredential(integrationKey, credentialID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked {
		return ErrWalletLocked
	}
	rec, ok := w.registries.Integrations[integrationKey]
	if !ok {
		return ErrIntegrationNotFound
	}
	if _, ok := w.registries.Credentials[credentialID]; !ok {
		return ErrCredentialNotFound
	}
	rec.CredentialID = credentialID
	if rec.Status == IntegrationPending {
		rec.Status = IntegrationActive
	}
	return w.saveLocked()
}

// AddCredential encrypts secret under the master key and inserts a new
// credential record, enforcing I3 (unique id) by construction: the id is a
// fresh random 128-bit value. Returns the assigned id.
func (w *Wallet) AddCredential(provider, displayName string, kind CredentialKind, secret []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked {
		return "", ErrWalletLocked
	}

	id, err := newCredentialID()
	if err != nil {
		return "", err
	}

	var ciphertext []byte
	var sealErr error
	w.masterKey.Borrow(func(key []byte) {
		ciphertext, sealErr = crypto.Seal(key, secret, []byte("credential:"+id))
	})
	if sealErr != nil {
		return "", sealErr
	}

	prefix := ""
	if len(secret) >= 8 {
		prefix = string(secret[:8])
	} else {
		prefix = string(secret)
	}

	w.registries.Credentials[id] = &CredentialRecord{
		ID:          id,
		Provider:    provider,
		DisplayName: displayName,
		Kind:        kind,
		Prefix:      prefix,
		Ciphertext:  ciphertext,
		CreatedAt:   time.Now(),
	}
	if err := w.saveLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// ListCredentials returns every credential record. Ciphertext fields are
// included (they are useless without the master key) but plaintext never
// is — there is no such field on CredentialRecord.
func (w *Wallet) ListCredentials() ([]*CredentialRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateUnlocked {
		return nil, ErrWalletLocked
	}
	out := make([]*CredentialRecord, 0, len(w.registries.Credentials))
	for _, rec := range w.registries.Credentials {
		out = append(out, rec)
	}
	return out, nil
}

// RemoveCredential deletes a credential record and unbinds it from any
// integration that referenced it, marking those integrations pending.
func (w *Wallet) RemoveCredential(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateUnlocked {
		return ErrWalletLocked
	}
	if _, ok := w.registries.Credentials[id]; !ok {
		return ErrCredentialNotFound
	}
	delete(w.registries.Credentials, id)
	for _, rec := range w.registries.Integrations {
		if rec.CredentialID == id {
			rec.CredentialID = ""
			rec.Status = IntegrationPending
		}
	}
	return w.saveLocked()
}

// DecryptCredential borrows the master key to decrypt one credential's
// secret and hands the plaintext to fn inside a sealed container, which
// DecryptCredential destroys once fn returns. Also stamps last-used-at.
func (w *Wallet) DecryptCredential(id string, fn func(*crypto.Sealed) error) error {
	w.mu.RLock()
	if w.state != StateUnlocked {
		w.mu.RUnlock()
		return ErrWalletLocked
	}
	rec, ok := w.registries.Credentials[id]
	if !ok {
		w.mu.RUnlock()
		return ErrCredentialNotFound
	}
	ciphertext := rec.Ciphertext
	var masterKeyCopy []byte
	w.masterKey.Borrow(func(key []byte) {
		masterKeyCopy = append([]byte(nil), key...)
	})
	w.mu.RUnlock()
	defer zero(masterKeyCopy)

	plaintext, err := crypto.Open(masterKeyCopy, ciphertext, []byte("credential:"+id))
	if err != nil {
		return err
	}
	sealed := crypto.NewSealed(plaintext)
	defer sealed.Destroy()

	callErr := fn(sealed)

	w.mu.Lock()
	if r, ok := w.registries.Credentials[id]; ok {
		r.LastUsedAt = time.Now()
	}
	w.mu.Unlock()

	return callErr
}

func newCredentialID() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate credential id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
