// Package identity yields the stable anonymous actor id for a session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Provider is the identity collaborator the session consumes.
type Provider interface {
	// CurrentUser returns the signed-in uid, if any.
	CurrentUser() (string, bool)

	// SignInAnonymously creates (or restores) an anonymous uid.
	SignInAnonymously(ctx context.Context) (string, error)

	// Watch calls fn with the current state immediately and again after
	// every sign-in. The returned func stops the watch.
	Watch(fn func(uid string, ok bool)) (stop func())
}

// UIDStore persists the anonymous uid between runs.
type UIDStore interface {
	LoadUID(ctx context.Context) (string, error)
	// SaveUID stores uid unless one is already saved and returns the uid
	// that is persisted, which may belong to an earlier sign-in.
	SaveUID(ctx context.Context, uid string) (string, error)
}

// ErrNoUID is returned by UIDStore.LoadUID when nothing is saved yet.
var ErrNoUID = errors.New("no uid saved")

// LocalProvider keeps one anonymous uid in a UIDStore.
type LocalProvider struct {
	store UIDStore

	mu       sync.Mutex
	uid      string
	watchers map[int]func(string, bool)
	nextID   int
}

// NewLocalProvider loads any saved uid. A missing uid is not an error;
// the caller signs in when Watch reports no user.
func NewLocalProvider(ctx context.Context, store UIDStore) (*LocalProvider, error) {
	p := &LocalProvider{store: store, watchers: map[int]func(string, bool){}}
	uid, err := store.LoadUID(ctx)
	switch {
	case err == nil:
		p.uid = uid
	case errors.Is(err, ErrNoUID):
	default:
		return nil, fmt.Errorf("load uid: %w", err)
	}
	return p, nil
}

func (p *LocalProvider) CurrentUser() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uid, p.uid != ""
}

func (p *LocalProvider) SignInAnonymously(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.uid != "" {
		uid := p.uid
		p.mu.Unlock()
		return uid, nil
	}
	p.mu.Unlock()

	uid, err := p.store.SaveUID(ctx, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		return "", fmt.Errorf("save uid: %w", err)
	}

	p.mu.Lock()
	p.uid = uid
	watchers := make([]func(string, bool), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()

	for _, fn := range watchers {
		fn(uid, true)
	}
	return uid, nil
}

func (p *LocalProvider) Watch(fn func(uid string, ok bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	uid := p.uid
	p.mu.Unlock()

	fn(uid, uid != "")

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

// DisplayAddress shortens a uid to "abcdef...wxyz".
func DisplayAddress(uid string) string {
	if len(uid) <= 10 {
		return uid
	}
	return uid[:6] + "..." + uid[len(uid)-4:]
}
