package session

import (
	"testing"
	"time"
)

func TestSession_CreateAndResume(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	masterKey := []byte("0123456789abcdef0123456789abcdef")

	token, err := m.Create(masterKey)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(token) != 64 { // 32 bytes hex-encoded
		t.Fatalf("token length = %d, want 64", len(token))
	}

	sealed, err := m.Resume(token)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	defer sealed.Destroy()

	var got string
	sealed.Borrow(func(b []byte) { got = string(b) })
	if got != string(masterKey) {
		t.Errorf("resumed master key = %q, want %q", got, masterKey)
	}
}

func TestSession_ResumeWrongTokenFails(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	if _, err := m.Create([]byte("master-key-bytes")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := m.Resume("0000000000000000000000000000000000000000000000000000000000000000"); err != ErrBadToken {
		t.Errorf("Resume(wrong token) = %v, want ErrBadToken", err)
	}
}

func TestSession_ResumeExpiredFails(t *testing.T) {
	m := NewManager(t.TempDir(), -time.Second) // already expired
	token, err := m.Create([]byte("master-key-bytes"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := m.Resume(token); err != ErrExpired {
		t.Errorf("Resume(expired) = %v, want ErrExpired", err)
	}
}

func TestSession_ResumeNoSessionFails(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	if _, err := m.Resume("anything"); err != ErrNoSession {
		t.Errorf("Resume(no session file) = %v, want ErrNoSession", err)
	}
}

// S1/invariant 4: lock revocation — clearing the session makes every
// subsequent resume fail NoSession regardless of token validity.
func TestSession_ClearRevokesImmediately(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	token, err := m.Create([]byte("master-key-bytes"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := m.Resume(token); err != ErrNoSession {
		t.Errorf("Resume after Clear = %v, want ErrNoSession", err)
	}
}

// Invariant S1: creating a new session replaces the prior one.
func TestSession_CreateReplacesPrior(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)

	token1, err := m.Create([]byte("master-key-bytes-one"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	token2, err := m.Create([]byte("master-key-bytes-two"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := m.Resume(token1); err != ErrBadToken {
		t.Errorf("Resume(superseded token) = %v, want ErrBadToken", err)
	}

	sealed, err := m.Resume(token2)
	if err != nil {
		t.Fatalf("Resume(current token): %v", err)
	}
	defer sealed.Destroy()

	var got string
	sealed.Borrow(func(b []byte) { got = string(b) })
	if got != "master-key-bytes-two" {
		t.Errorf("resumed master key = %q, want %q", got, "master-key-bytes-two")
	}
}
