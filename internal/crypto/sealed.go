package crypto

import "crypto/subtle"

// Sealed holds a secret byte slice that must never be copied or logged. The
// only way to read it is Borrow, which hands the caller a slice valid only
// for the duration of the callback — callers must not retain it past
// return. Destroy overwrites the backing array before releasing it, and a
// Sealed value is safe to Destroy more than once.
type Sealed struct {
	b []byte
}

// NewSealed wraps b, taking ownership of the backing array. Callers must not
// retain their own reference to b after calling NewSealed.
func NewSealed(b []byte) *Sealed {
	return &Sealed{b: b}
}

// Borrow invokes fn with the secret bytes. fn must not retain the slice.
// Borrow on a destroyed or nil Sealed invokes fn with a nil slice.
func (s *Sealed) Borrow(fn func([]byte)) {
	if s == nil {
		fn(nil)
		return
	}
	fn(s.b)
}

// Len reports the length of the sealed secret, or 0 if destroyed.
func (s *Sealed) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Destroy overwrites the backing array with zeroes and releases it. Safe to
// call multiple times and on a nil receiver.
func (s *Sealed) Destroy() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// Equal compares two sealed secrets in constant time. Differing lengths
// short-circuit (length is not considered sensitive here).
func (s *Sealed) Equal(other *Sealed) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.b) != len(other.b) {
		return false
	}
	return subtle.ConstantTimeCompare(s.b, other.b) == 1
}

// DebugZeroed reports whether the backing array has been destroyed. Used
// only from tests to confirm secrets are actually scrubbed, never from
// production code paths.
func (s *Sealed) DebugZeroed() bool {
	if s == nil {
		return true
	}
	return s.b == nil
}
