// Package reward rolls weighted random reward tiers for loot packs.
package reward

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/spawn-mesh/internal/model"
)

// ErrInvalidTable is returned when a threshold table cannot partition [0,1).
var ErrInvalidTable = errors.New("invalid reward table")

// Source supplies uniform random values in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Threshold maps draws strictly above Above to Tier.
type Threshold struct {
	Tier  model.RewardTier `yaml:"tier"`
	Above float64          `yaml:"above"`
}

// Table is a rarity cascade tested rarest first. Draws that pass no
// threshold fall through to Floor.
type Table struct {
	Thresholds []Threshold     `yaml:"thresholds"`
	Floor      model.RewardTier `yaml:"floor"`
}

// DefaultTable is the canonical drop table.
var DefaultTable = Table{
	Thresholds: []Threshold{
		{Tier: model.OmegaCore, Above: 0.992},
		{Tier: model.Relic, Above: 0.985},
		{Tier: model.Artifact, Above: 0.95},
		{Tier: model.Core, Above: 0.85},
		{Tier: model.Shard, Above: 0.6},
	},
	Floor: model.Fragment,
}

// Tier maps a draw r in [0,1) to exactly one tier.
func (t Table) Tier(r float64) model.RewardTier {
	for _, th := range t.Thresholds {
		if r > th.Above {
			return th.Tier
		}
	}
	return t.Floor
}

// Validate checks that thresholds lie in [0,1) and strictly decrease, so
// every draw lands in exactly one band.
func (t Table) Validate() error {
	if !t.Floor.Valid() {
		return fmt.Errorf("%w: floor tier %d", ErrInvalidTable, int(t.Floor))
	}
	for i, th := range t.Thresholds {
		if !th.Tier.Valid() {
			return fmt.Errorf("%w: tier %d at position %d", ErrInvalidTable, int(th.Tier), i)
		}
		if th.Above < 0 || th.Above >= 1 {
			return fmt.Errorf("%w: threshold %v for %s outside [0,1)", ErrInvalidTable, th.Above, th.Tier)
		}
		if i > 0 && th.Above >= t.Thresholds[i-1].Above {
			return fmt.Errorf("%w: threshold for %s (%v) must be below %s (%v)",
				ErrInvalidTable, th.Tier, th.Above, t.Thresholds[i-1].Tier, t.Thresholds[i-1].Above)
		}
	}
	return nil
}

// LoadTable reads a YAML table such as
//
//	thresholds:
//	  - {tier: omega, above: 0.995}
//	  - {tier: shard, above: 0.5}
//	floor: fragment
func LoadTable(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read reward table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Table{}, fmt.Errorf("parse reward table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Roller draws tiers from a table using an injected random source.
type Roller struct {
	table Table
	src   Source
}

// NewRoller returns a Roller. A nil src uses a time-seeded generator.
func NewRoller(table Table, src Source) *Roller {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Roller{table: table, src: src}
}

// Roll draws once and returns the resulting tier.
func (r *Roller) Roll() model.RewardTier {
	return r.table.Tier(r.src.Float64())
}

func (r *Roller) Table() Table { return r.table }
