// Package feed reconciles optimistic local events with canonical batches
// delivered by the event store.
//
// Entries move between two states only. Optimistic puts a locally minted
// event at the head of the feed, and Replace swaps the whole feed for a
// canonical batch. Nothing is merged field by field. An optimistic entry
// that is missing from the next batch is evicted, not matched.
package feed

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/rcliao/spawn-mesh/internal/model"
)

// DefaultCap is the number of entries shown when no cap is configured.
const DefaultCap = 30

// TempIDPrefix marks ids minted locally before the store assigns one.
const TempIDPrefix = "tmp-"

// State is where an entry sits in the reconciliation lifecycle.
type State int

const (
	Optimistic State = iota
	Canonical
)

func (s State) String() string {
	switch s {
	case Optimistic:
		return "optimistic"
	case Canonical:
		return "canonical"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Entry is one displayed feed row.
type Entry struct {
	Event model.MeshEvent `json:"event"`
	State State           `json:"state"`
}

// Feed is the displayed, bounded, most-recent-first event list. It is not
// safe for concurrent use; the owning session serializes access.
type Feed struct {
	cap     int
	entries []Entry
	nextTmp uint64
}

// New returns an empty feed holding at most limit entries.
func New(limit int) *Feed {
	if limit <= 0 {
		limit = DefaultCap
	}
	return &Feed{cap: limit}
}

func (f *Feed) Cap() int { return f.cap }
func (f *Feed) Len() int { return len(f.entries) }

// Entries returns a copy of the displayed entries.
func (f *Feed) Entries() []Entry {
	return slices.Clone(f.entries)
}

// Events returns the displayed events without their states.
func (f *Feed) Events() []model.MeshEvent {
	out := make([]model.MeshEvent, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Event
	}
	return out
}

// Optimistic stamps d with a temporary id and the synthesized time now,
// shows it at once and returns the event so the caller can append it.
func (f *Feed) Optimistic(d model.Draft, actor string, now time.Time) model.MeshEvent {
	f.nextTmp++
	evt := d.Stamp(fmt.Sprintf("%s%d", TempIDPrefix, f.nextTmp), actor, now)

	entries := make([]Entry, 0, len(f.entries)+1)
	entries = append(entries, Entry{Event: evt, State: Optimistic})
	entries = append(entries, f.entries...)
	f.entries = f.order(entries)
	return evt
}

// Replace installs batch as the whole feed. It reports false, leaving the
// feed untouched, when the batch matches what is already shown.
func (f *Feed) Replace(batch []model.MeshEvent) bool {
	entries := make([]Entry, len(batch))
	for i, e := range batch {
		entries[i] = Entry{Event: e, State: Canonical}
	}
	entries = f.order(entries)

	if f.same(entries) {
		return false
	}
	f.entries = entries
	return true
}

// order sorts most recent first and applies the cap. Ties keep their
// incoming order, so a fresh optimistic entry stays ahead of an equal stamp.
func (f *Feed) order(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Event.OccurredAt.After(entries[j].Event.OccurredAt)
	})
	if len(entries) > f.cap {
		entries = entries[:f.cap]
	}
	return entries
}

func (f *Feed) same(entries []Entry) bool {
	if len(entries) != len(f.entries) {
		return false
	}
	for i := range entries {
		a, b := entries[i], f.entries[i]
		if a.State != b.State || !sameEvent(a.Event, b.Event) {
			return false
		}
	}
	return true
}

func sameEvent(a, b model.MeshEvent) bool {
	return a.ID == b.ID &&
		a.Kind == b.Kind &&
		a.Text == b.Text &&
		a.Actor == b.Actor &&
		a.Version == b.Version &&
		a.OccurredAt.Equal(b.OccurredAt) &&
		slices.Equal(a.Tags, b.Tags)
}

// OptimisticCount reports how many displayed entries are still local guesses.
func (f *Feed) OptimisticCount() int {
	n := 0
	for _, e := range f.entries {
		if e.State == Optimistic {
			n++
		}
	}
	return n
}
