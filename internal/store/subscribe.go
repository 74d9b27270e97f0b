package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/spawn-mesh/internal/model"
)

var errClosed = errors.New("store closed")

type subscription struct {
	s      *SQLiteStore
	id     int
	params SubscribeParams
	l      Listener
}

func (sub *subscription) Close() {
	sub.s.subMu.Lock()
	delete(sub.s.subs, sub.id)
	sub.s.subMu.Unlock()
}

// SubscribeRecent registers l for the newest p.Limit events in p.NS. The
// initial batch is delivered synchronously. Later batches arrive after
// every append through this store and, when polling is enabled, after
// commits from other processes.
func (s *SQLiteStore) SubscribeRecent(ctx context.Context, p SubscribeParams, l Listener) (Subscription, error) {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// The watcher's baseline must predate the initial query, or a commit
	// landing in between is never pushed.
	if err := s.ensurePoller(ctx); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	batch, err := s.recent(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return nil, fmt.Errorf("subscribe: %w", errClosed)
	}
	sub := &subscription{s: s, id: s.nextSubID, params: p, l: l}
	s.nextSubID++
	s.subs[sub.id] = sub
	s.subMu.Unlock()

	if l.OnBatch != nil {
		l.OnBatch(batch)
	}
	s.logger.Debug("feed subscribed", "ns", p.NS, "limit", p.Limit)
	return sub, nil
}

func (s *SQLiteStore) recent(ctx context.Context, p SubscribeParams) ([]model.MeshEvent, error) {
	return s.queryEvents(ctx, `
		SELECT id, ns, kind, text, tags, actor, ts, ver
		FROM mesh_events
		WHERE ns = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`, p.NS, p.Limit)
}

// refreshAll re-runs the standing query for every subscription on ns and
// pushes the full batch. An empty ns refreshes every subscription. A
// failing query ends that subscription after reporting the error once.
func (s *SQLiteStore) refreshAll(ctx context.Context, ns string) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.subMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if ns == "" || sub.params.NS == ns {
			subs = append(subs, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		batch, err := s.recent(context.WithoutCancel(ctx), sub.params)
		if err != nil {
			s.fail(sub, err)
			continue
		}
		if !s.live(sub) {
			continue
		}
		if sub.l.OnBatch != nil {
			sub.l.OnBatch(batch)
		}
	}
}

func (s *SQLiteStore) live(sub *subscription) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	_, ok := s.subs[sub.id]
	return ok
}

// fail drops sub and reports err to it, once.
func (s *SQLiteStore) fail(sub *subscription, err error) {
	s.subMu.Lock()
	_, ok := s.subs[sub.id]
	delete(s.subs, sub.id)
	s.subMu.Unlock()
	if !ok {
		return
	}
	s.logger.Warn("feed subscription failed", "ns", sub.params.NS, "err", err)
	if sub.l.OnError != nil {
		sub.l.OnError(fmt.Errorf("subscription: %w", err))
	}
}

func (s *SQLiteStore) failAll(err error) {
	s.subMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()
	for _, sub := range subs {
		s.fail(sub, err)
	}
}

// ensurePoller starts the cross-process watcher unless it is running or
// polling is disabled. It reads the baseline data_version before returning.
func (s *SQLiteStore) ensurePoller(ctx context.Context) error {
	s.subMu.Lock()
	closed, running := s.closed, s.polling
	s.subMu.Unlock()
	if closed {
		return errClosed
	}
	if running || s.pollInterval <= 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open watch conn: %w", err)
	}
	var base int64
	if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&base); err != nil {
		conn.Close()
		return fmt.Errorf("read data_version: %w", err)
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		conn.Close()
		return errClosed
	}
	done := make(chan struct{})
	s.polling = true
	s.watchConn = conn
	s.pollDone = done
	go s.poll(conn, base, done)
	return nil
}

// poll watches PRAGMA data_version on a dedicated connection. The value
// changes whenever another connection commits, which covers appends made
// by other processes sharing the database file. When the watch fails, every
// subscription is ended and the next SubscribeRecent starts a new watcher.
func (s *SQLiteStore) poll(conn *sql.Conn, last int64, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.pollStop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.pollStop:
			return
		case <-ticker.C:
		}

		var v int64
		if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.subMu.Lock()
			s.polling = false
			s.watchConn = nil
			s.subMu.Unlock()
			s.failAll(fmt.Errorf("read data_version: %w", err))
			return
		}
		if v != last {
			last = v
			s.refreshAll(ctx, "")
		}
	}
}
