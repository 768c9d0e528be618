package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcpvault/mcpvault/internal/crypto"
)

const vaultFileVersion = 1

// kdfSection is the on-disk {salt, params} pair next to the vault file.
type kdfSection struct {
	Salt   []byte          `json:"salt"`
	Params crypto.KDFParams `json:"params"`
}

// vaultFile is the exact shape of wallet.json per spec.md §6:
// {version, kdf: {salt, params}, verify: <aead-blob>, body: <aead-blob>}.
type vaultFile struct {
	Version int        `json:"version"`
	KDF     kdfSection `json:"kdf"`
	Verify  []byte     `json:"verify"`
	Body    []byte     `json:"body"`
}

func walletPath(dataDir string) string {
	return filepath.Join(dataDir, "wallet.json")
}

// readVaultFile loads and structurally validates wallet.json. A missing
// file is reported via os.IsNotExist on the returned error; any other parse
// failure is ErrCorrupted.
func readVaultFile(dataDir string) (*vaultFile, error) {
	raw, err := os.ReadFile(walletPath(dataDir))
	if err != nil {
		return nil, err
	}

	var vf vaultFile
	if err := json.Unmarshal(raw, &vf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if vf.Version != vaultFileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupted, vf.Version)
	}
	if len(vf.KDF.Salt) != crypto.SaltLen {
		return nil, fmt.Errorf("%w: bad salt length", ErrCorrupted)
	}
	if len(vf.Verify) < crypto.NonceLen+16 || len(vf.Body) < crypto.NonceLen+16 {
		return nil, fmt.Errorf("%w: blob shorter than nonce+tag", ErrCorrupted)
	}
	return &vf, nil
}

// writeVaultFile persists vf atomically: write to a temp file in the same
// directory, fsync, then rename over the target.
func writeVaultFile(dataDir string, vf *vaultFile) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	raw, err := json.MarshalIndent(vf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault file: %w", err)
	}

	return atomicWrite(walletPath(dataDir), raw, 0o600)
}

// atomicWrite writes data to path via write-temp + fsync + rename, the
// pattern used throughout this codebase for every piece of persisted
// secret-adjacent state.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func removeVaultArtefacts(dataDir string) error {
	if err := os.Remove(walletPath(dataDir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
