// Package store provides the ordered mesh event log and its SQLite
// implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/spawn-mesh/internal/model"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("not found")

// AppendParams holds parameters for appending an event. The store assigns
// the id and the timestamp.
type AppendParams struct {
	NS      string
	Kind    model.EventKind
	Text    string
	Tags    []string
	Actor   string
	Version string
}

// SubscribeParams selects the standing query a listener follows.
type SubscribeParams struct {
	NS    string
	Limit int
}

// Listener receives pushed batches. OnBatch gets the full top-N batch,
// newest first, after every change. OnError is called at most once, after
// which the subscription is dead.
type Listener struct {
	OnBatch func([]model.MeshEvent)
	OnError func(error)
}

// Subscription is a registered listener. Close releases it.
type Subscription interface {
	Close()
}

// ListParams holds parameters for listing events.
type ListParams struct {
	NS    string
	Kind  model.EventKind
	Actor string
	Tags  []string
	Limit int
}

// SearchParams holds parameters for text search over events.
type SearchParams struct {
	NS    string
	Query string
	Limit int
}

// EventLog is the ordered event store the feed synchronizes with.
type EventLog interface {
	// Append stores an event and returns its canonical form.
	Append(ctx context.Context, p AppendParams) (*model.MeshEvent, error)

	// SubscribeRecent registers l for the newest p.Limit events in p.NS.
	// The current batch is delivered before SubscribeRecent returns.
	SubscribeRecent(ctx context.Context, p SubscribeParams, l Listener) (Subscription, error)
}

// Store is the full event store used by the CLI.
type Store interface {
	EventLog

	// Get retrieves one event by id.
	Get(ctx context.Context, ns, id string) (*model.MeshEvent, error)

	// List lists events matching the given filters, newest first.
	List(ctx context.Context, p ListParams) ([]model.MeshEvent, error)

	// Search finds events whose text contains the query.
	Search(ctx context.Context, p SearchParams) ([]model.MeshEvent, error)

	// Close stops watchers and closes the store.
	Close() error
}
