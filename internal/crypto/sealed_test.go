package crypto

import "testing"

func TestSealed_BorrowSeesData(t *testing.T) {
	s := NewSealed([]byte("master-key-bytes"))
	defer s.Destroy()

	var got string
	s.Borrow(func(b []byte) { got = string(b) })

	if got != "master-key-bytes" {
		t.Errorf("Borrow = %q, want %q", got, "master-key-bytes")
	}
}

func TestSealed_DestroyZeroes(t *testing.T) {
	s := NewSealed([]byte("sensitive"))

	if s.DebugZeroed() {
		t.Fatal("expected fresh Sealed to not be zeroed")
	}

	s.Destroy()

	if !s.DebugZeroed() {
		t.Error("expected Destroy to zero the secret")
	}
	if s.Len() != 0 {
		t.Errorf("Len after Destroy = %d, want 0", s.Len())
	}
}

func TestSealed_DestroyIdempotent(t *testing.T) {
	s := NewSealed([]byte("x"))
	s.Destroy()
	s.Destroy() // must not panic
}

func TestSealed_Equal(t *testing.T) {
	a := NewSealed([]byte("same-value"))
	b := NewSealed([]byte("same-value"))
	c := NewSealed([]byte("different"))
	defer a.Destroy()
	defer b.Destroy()
	defer c.Destroy()

	if !a.Equal(b) {
		t.Error("expected equal sealed values to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected different sealed values to compare unequal")
	}
}

func TestSealed_NilSafe(t *testing.T) {
	var s *Sealed
	s.Destroy() // must not panic

	var got []byte = []byte("untouched")
	s.Borrow(func(b []byte) { got = b })
	if got != nil {
		t.Error("expected Borrow on nil Sealed to pass a nil slice")
	}
	if !s.Equal(nil) {
		t.Error("expected two nil Sealed values to be Equal")
	}
}
