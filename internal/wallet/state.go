package wallet

import "fmt"

// State is one of the four values the wallet can occupy. Only Unlocked
// exposes decrypt/write operations; every other state rejects them with
// ErrWalletLocked (or ErrNotInitialised, for the Loading/NotInitialised
// distinction).
type State int

const (
	// StateLoading is the transient value before the on-disk layout has
	// been inspected. New wallets start here; Load() moves them out of it.
	StateLoading State = iota
	StateNotInitialised
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateNotInitialised:
		return "not_initialised"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
