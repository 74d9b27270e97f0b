// Package model defines the core reward, wallet and mesh event types.
package model

import (
	"slices"
	"time"
)

// EventKind tags what produced a mesh event.
type EventKind string

const (
	KindQuest    EventKind = "quest"
	KindPackOpen EventKind = "pack_open"
	KindBotTrade EventKind = "bot_trade"
	KindBotScan  EventKind = "bot_scan"
	KindMeshSync EventKind = "mesh_sync"
	KindCustom   EventKind = "custom"
)

// ValidKinds are the event kinds the feed knows how to render.
var ValidKinds = map[EventKind]bool{
	KindQuest:    true,
	KindPackOpen: true,
	KindBotTrade: true,
	KindBotScan:  true,
	KindMeshSync: true,
	KindCustom:   true,
}

// Known folds unrecognised kinds into KindCustom.
func (k EventKind) Known() EventKind {
	if ValidKinds[k] {
		return k
	}
	return KindCustom
}

// ProtocolVersion is stamped on every event this client creates.
const ProtocolVersion = "v1.0"

// AnonActor is used when the session has no address yet.
const AnonActor = "Anon"

// MeshEvent is one entry in the shared activity feed. Treat it as a value:
// nothing modifies an event after it is created.
type MeshEvent struct {
	ID         string    `json:"id"`
	NS         string    `json:"ns,omitempty"`
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text"`
	Tags       []string  `json:"tags,omitempty"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
	Version    string    `json:"ver"`
}

// HasTag reports whether the event carries tag. Tag order is irrelevant.
func (e MeshEvent) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// Draft is an event that has not been given an id, actor or timestamp yet.
type Draft struct {
	Kind EventKind
	Text string
	Tags []string
}

// Stamp turns a draft into an event with the given identity fields.
func (d Draft) Stamp(id, actor string, at time.Time) MeshEvent {
	if actor == "" {
		actor = AnonActor
	}
	return MeshEvent{
		ID:         id,
		Kind:       d.Kind,
		Text:       d.Text,
		Tags:       slices.Clone(d.Tags),
		Actor:      actor,
		OccurredAt: at,
		Version:    ProtocolVersion,
	}
}
