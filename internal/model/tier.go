package model

import (
	"fmt"
	"math"
)

// RewardTier is one rarity class in the loot-pack reward table.
// Tiers are ordered by rarity ascending.
type RewardTier int

const (
	Fragment RewardTier = iota
	Shard
	Core
	Artifact
	Relic
	OmegaCore
)

// MinimumXPGain is the floor applied to every pack's XP gain.
const MinimumXPGain = 1

type tierInfo struct {
	id    string
	label string
	color string
	value float64
}

var tiers = [...]tierInfo{
	Fragment:  {id: "fragment", label: "Fragment", color: "slate", value: 0.1},
	Shard:     {id: "shard", label: "Shard", color: "cyan", value: 1.1},
	Core:      {id: "core", label: "Core", color: "purple", value: 4.0},
	Artifact:  {id: "artifact", label: "Artifact", color: "pink", value: 40.0},
	Relic:     {id: "relic", label: "Relic", color: "yellow", value: 200.0},
	OmegaCore: {id: "omega", label: "Omega Core", color: "red", value: 1000.0},
}

// AllTiers lists every tier, least rare first.
func AllTiers() []RewardTier {
	return []RewardTier{Fragment, Shard, Core, Artifact, Relic, OmegaCore}
}

// Valid reports whether t is one of the known tiers.
func (t RewardTier) Valid() bool {
	return t >= Fragment && t <= OmegaCore
}

func (t RewardTier) ID() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tiers[t].id
}

func (t RewardTier) Label() string {
	if !t.Valid() {
		return "Unknown"
	}
	return tiers[t].label
}

// Color is a presentation hint for renderers.
func (t RewardTier) Color() string {
	if !t.Valid() {
		return ""
	}
	return tiers[t].color
}

func (t RewardTier) Value() float64 {
	if !t.Valid() {
		return 0
	}
	return tiers[t].value
}

// XPGain is the experience awarded for pulling this tier from a pack.
func (t RewardTier) XPGain() int {
	gain := int(math.Floor(t.Value() * 10))
	if gain < MinimumXPGain {
		return MinimumXPGain
	}
	return gain
}

func (t RewardTier) String() string { return t.Label() }

// ParseTier resolves a tier id ("fragment" ... "omega").
func ParseTier(id string) (RewardTier, error) {
	for i, info := range tiers {
		if info.id == id {
			return RewardTier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", id)
}

// MarshalText encodes the tier as its id.
func (t RewardTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.ID()), nil
}

func (t *RewardTier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
