// Package wallet applies check-in and pack-opening rules to a session wallet.
package wallet

import (
	"fmt"

	"github.com/rcliao/spawn-mesh/internal/model"
)

const (
	// DailyBonus is the XP granted by a check-in.
	DailyBonus = 50

	SeedXP     = 1575
	SeedSPN    = 497
	SeedStreak = 5
)

// State owns a wallet and the rules that mutate it.
type State struct {
	w            model.Wallet
	inventoryCap int
}

// New returns a State holding the session seed values. inventoryCap <= 0
// keeps the whole pull history.
func New(inventoryCap int) *State {
	return &State{
		w: model.Wallet{
			XP:        SeedXP,
			SPN:       SeedSPN,
			Streak:    SeedStreak,
			Inventory: []model.RewardTier{},
		},
		inventoryCap: inventoryCap,
	}
}

// Snapshot returns a copy of the current wallet.
func (s *State) Snapshot() model.Wallet {
	return s.w.Clone()
}

// SetAddress records the display address derived from the session identity.
func (s *State) SetAddress(addr string) {
	s.w.Address = addr
}

func (s *State) Address() string { return s.w.Address }

// CheckIn grants the daily bonus and extends the streak.
func (s *State) CheckIn() model.Draft {
	s.w.Streak++
	s.w.XP += DailyBonus
	return model.Draft{
		Kind: model.KindQuest,
		Text: fmt.Sprintf("Daily check-in completed (streak %d)", s.w.Streak),
		Tags: []string{"xp"},
	}
}

// Roller is the part of reward.Roller that OpenPack needs.
type Roller interface {
	Roll() model.RewardTier
}

// OpenPack rolls one reward, stores it at the front of the inventory and
// credits its XP.
func (s *State) OpenPack(r Roller) (model.RewardTier, int, model.Draft) {
	tier := r.Roll()
	gain := tier.XPGain()

	inv := make([]model.RewardTier, 0, len(s.w.Inventory)+1)
	inv = append(inv, tier)
	inv = append(inv, s.w.Inventory...)
	if s.inventoryCap > 0 && len(inv) > s.inventoryCap {
		inv = inv[:s.inventoryCap]
	}
	s.w.Inventory = inv
	s.w.XP += gain

	return tier, gain, model.Draft{
		Kind: model.KindPackOpen,
		Text: fmt.Sprintf("Opened pack: %s (+%d XP)", tier.Label(), gain),
		Tags: []string{"loot", tier.ID()},
	}
}
