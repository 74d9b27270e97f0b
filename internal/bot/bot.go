// Package bot runs the automated mesh actor: a timed process that now and
// then emits a synthetic action into the feed.
package bot

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/rcliao/spawn-mesh/internal/clock"
	"github.com/rcliao/spawn-mesh/internal/model"
)

const (
	DefaultInterval  = 8 * time.Second
	DefaultThreshold = 0.95
)

// Catalog is the fixed set of actions the bot picks from.
var Catalog = []model.Draft{
	{Kind: model.KindBotTrade, Text: "🤖 SpawnBot: Auto-staked 50 SPN", Tags: []string{"automation"}},
	{Kind: model.KindBotScan, Text: "🤖 SpawnBot: Whale detected on Base", Tags: []string{"intel"}},
	{Kind: model.KindMeshSync, Text: "🌐 Mesh: Factory deployed", Tags: []string{"infra"}},
}

// Source supplies uniform random values in [0,1).
type Source interface {
	Float64() float64
}

// Options configures an Actor. Zero values take the defaults.
type Options struct {
	Interval  time.Duration
	Threshold float64
	Catalog   []model.Draft
	Clock     clock.Clock
	Rand      Source
	Logger    *slog.Logger
}

// Actor ticks on a fixed interval while enabled. Each tick draws once and
// emits a random catalog action when the draw clears Threshold.
type Actor struct {
	interval  time.Duration
	threshold float64
	catalog   []model.Draft
	clock     clock.Clock
	logger    *slog.Logger
	emit      func(model.Draft)

	mu         sync.Mutex
	rand       Source
	active     bool
	generation uint64
	timer      *clock.Timer
}

// New returns a disabled Actor that hands chosen actions to emit.
func New(opts Options, emit func(model.Draft)) *Actor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if len(opts.Catalog) == 0 {
		opts.Catalog = Catalog
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Actor{
		interval:  opts.Interval,
		threshold: opts.Threshold,
		catalog:   opts.Catalog,
		clock:     opts.Clock,
		rand:      opts.Rand,
		logger:    opts.Logger,
		emit:      emit,
	}
}

func (a *Actor) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Enable starts a fresh tick interval. It does nothing if already enabled.
func (a *Actor) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return
	}
	a.active = true
	a.generation++
	a.scheduleLocked(a.generation)
	a.logger.Debug("bot enabled", "interval", a.interval, "threshold", a.threshold)
}

// Disable cancels the pending tick. No action fires after it returns.
func (a *Actor) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	a.active = false
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.logger.Debug("bot disabled")
}

// SetActive enables or disables the actor.
func (a *Actor) SetActive(on bool) {
	if on {
		a.Enable()
	} else {
		a.Disable()
	}
}

func (a *Actor) scheduleLocked(gen uint64) {
	a.timer = a.clock.AfterFunc(a.interval, func() { a.tick(gen) })
}

func (a *Actor) tick(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// A tick from an older generation belongs to a disabled or restarted
	// interval and must not act or reschedule.
	if !a.active || gen != a.generation {
		return
	}
	a.scheduleLocked(gen)

	if a.rand.Float64() <= a.threshold {
		return
	}
	action := a.catalog[int(a.rand.Float64()*float64(len(a.catalog)))%len(a.catalog)]
	a.logger.Debug("bot action", "kind", action.Kind)
	// emit runs under a.mu and must not call back into a.
	a.emit(action)
}
