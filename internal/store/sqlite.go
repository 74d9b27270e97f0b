package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/spawn-mesh/internal/clock"
	"github.com/rcliao/spawn-mesh/internal/model"
)

// tsLayout is fixed width so text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const defaultLimit = 30

// Options configures a SQLiteStore. Zero values take the defaults.
type Options struct {
	// PollInterval is how often the store checks for commits made by other
	// processes. Zero disables cross-process polling.
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	clock  clock.Clock
	logger *slog.Logger

	idMu    sync.Mutex
	entropy io.Reader

	subMu     sync.Mutex
	subs      map[int]*subscription
	nextSubID int
	polling   bool
	closed    bool
	watchConn *sql.Conn
	pollDone  chan struct{}
	refreshMu sync.Mutex

	pollInterval time.Duration
	pollStop     chan struct{}
	closeOnce    sync.Once
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &SQLiteStore{
		db:           db,
		clock:        opts.Clock,
		logger:       opts.Logger,
		entropy:      ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		subs:         map[int]*subscription{},
		pollInterval: opts.PollInterval,
		pollStop:     make(chan struct{}),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(at time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mesh_events (
		id          TEXT PRIMARY KEY,
		ns          TEXT NOT NULL,
		kind        TEXT NOT NULL,
		text        TEXT NOT NULL,
		tags        TEXT,
		actor       TEXT NOT NULL DEFAULT 'Anon',
		ts          TEXT NOT NULL,
		ver         TEXT NOT NULL DEFAULT 'v1.0'
	);
	CREATE INDEX IF NOT EXISTS idx_events_ns_ts ON mesh_events(ns, ts DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_events_ns_kind ON mesh_events(ns, kind);
	CREATE INDEX IF NOT EXISTS idx_events_actor ON mesh_events(actor);

	CREATE TABLE IF NOT EXISTS identity (
		slot        INTEGER PRIMARY KEY CHECK (slot = 1),
		uid         TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, p AppendParams) (*model.MeshEvent, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, fmt.Errorf("append: text is required")
	}
	kind := p.Kind
	if kind == "" {
		kind = model.KindCustom
	}
	actor := p.Actor
	if actor == "" {
		actor = model.AnonActor
	}
	version := p.Version
	if version == "" {
		version = model.ProtocolVersion
	}

	now := s.clock.Now().UTC()
	id := s.newID(now)

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, _ := json.Marshal(p.Tags)
		js := string(b)
		tagsJSON = &js
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mesh_events (id, ns, kind, text, tags, actor, ts, ver)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.NS, string(kind), p.Text, tagsJSON, actor, now.Format(tsLayout), version)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	evt := &model.MeshEvent{
		ID:         id,
		NS:         p.NS,
		Kind:       kind,
		Text:       p.Text,
		Tags:       slices.Clone(p.Tags),
		Actor:      actor,
		OccurredAt: now,
		Version:    version,
	}

	s.refreshAll(ctx, p.NS)
	return evt, nil
}

func (s *SQLiteStore) Get(ctx context.Context, ns, id string) (*model.MeshEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ns, kind, text, tags, actor, ts, ver
		 FROM mesh_events WHERE ns = ? AND id = ?`, ns, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s/%s: %w", ns, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.MeshEvent, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	where := []string{"ns = ?"}
	args := []interface{}{p.NS}

	if p.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(p.Kind))
	}
	if p.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, p.Actor)
	}
	for _, tag := range p.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(mesh_events.tags) WHERE value = ?)")
		args = append(args, tag)
	}

	query := fmt.Sprintf(`
		SELECT id, ns, kind, text, tags, actor, ts, ver
		FROM mesh_events
		WHERE %s
		ORDER BY ts DESC, id DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.queryEvents(ctx, query, args...)
}

func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]model.MeshEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.MeshEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close stops the poller, drops all subscriptions and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.subMu.Lock()
		s.closed = true
		done := s.pollDone
		s.subs = map[int]*subscription{}
		s.subMu.Unlock()

		close(s.pollStop)
		if done != nil {
			<-done
		}
		err = s.db.Close()
	})
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (model.MeshEvent, error) {
	var e model.MeshEvent
	var kind, ts string
	var tagsJSON sql.NullString

	err := row.Scan(&e.ID, &e.NS, &kind, &e.Text, &tagsJSON, &e.Actor, &ts, &e.Version)
	if err != nil {
		return e, err
	}

	e.Kind = model.EventKind(kind)
	e.OccurredAt, _ = time.Parse(tsLayout, ts)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &e.Tags)
	}
	return e, nil
}
