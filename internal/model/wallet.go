package model

import "slices"

// Wallet holds a session's balances and pulled rewards. It lives only as
// long as the session that owns it.
type Wallet struct {
	Address   string       `json:"address,omitempty"`
	XP        int          `json:"xp"`
	SPN       int          `json:"spn"`
	Streak    int          `json:"streak"`
	Inventory []RewardTier `json:"inventory"`
}

// Clone returns a copy that shares no memory with w.
func (w Wallet) Clone() Wallet {
	w.Inventory = slices.Clone(w.Inventory)
	return w
}
