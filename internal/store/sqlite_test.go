package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/spawn-mesh/internal/clock"
	"github.com/rcliao/spawn-mesh/internal/identity"
	"github.com/rcliao/spawn-mesh/internal/model"
)

var (
	_ Store             = (*SQLiteStore)(nil)
	_ identity.UIDStore = (*SQLiteStore)(nil)
)

func newTestStore(t *testing.T) (*SQLiteStore, *clock.FakeClock) {
	t.Helper()
	c := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), Options{Clock: c})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, c
}

func TestAppendAndGet(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore(t)

	evt, err := s.Append(ctx, AppendParams{
		NS: "app", Kind: model.KindPackOpen, Text: "Opened pack: Shard (+11 XP)",
		Tags: []string{"loot", "shard"}, Actor: "abcdef...wxyz",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if evt.ID == "" {
		t.Error("expected store-assigned id")
	}
	if !evt.OccurredAt.Equal(c.Now()) {
		t.Errorf("expected server timestamp %v, got %v", c.Now(), evt.OccurredAt)
	}
	if evt.Version != model.ProtocolVersion {
		t.Errorf("expected default version, got %q", evt.Version)
	}

	got, err := s.Get(ctx, "app", evt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != evt.Text || got.Kind != model.KindPackOpen || got.Actor != "abcdef...wxyz" {
		t.Errorf("unexpected event: %+v", got)
	}
	if !got.OccurredAt.Equal(evt.OccurredAt) {
		t.Errorf("timestamp did not round-trip: %v vs %v", got.OccurredAt, evt.OccurredAt)
	}
	if !got.HasTag("shard") {
		t.Errorf("tags not persisted: %v", got.Tags)
	}
}

func TestAppendDefaults(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	evt, err := s.Append(ctx, AppendParams{NS: "app", Text: "hello"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if evt.Kind != model.KindCustom || evt.Actor != model.AnonActor {
		t.Errorf("expected custom/Anon defaults, got %s/%s", evt.Kind, evt.Actor)
	}
}

func TestAppendRequiresText(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Append(context.Background(), AppendParams{NS: "app", Text: "  "}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "app", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore(t)

	for _, text := range []string{"first", "second", "third"} {
		s.Append(ctx, AppendParams{NS: "app", Text: text})
		c.Advance(time.Second)
	}
	s.Append(ctx, AppendParams{NS: "other", Text: "elsewhere"})

	list, err := s.List(ctx, ListParams{NS: "app"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
	if list[0].Text != "third" || list[2].Text != "first" {
		t.Errorf("expected newest first, got %s..%s", list[0].Text, list[2].Text)
	}
}

func TestListSameInstantOrderedByID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// The fake clock never moves, so ordering falls back to monotonic ids.
	s.Append(ctx, AppendParams{NS: "app", Text: "a"})
	s.Append(ctx, AppendParams{NS: "app", Text: "b"})

	list, _ := s.List(ctx, ListParams{NS: "app"})
	if len(list) != 2 || list[0].Text != "b" {
		t.Errorf("expected later append first, got %+v", list)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	s.Append(ctx, AppendParams{NS: "app", Kind: model.KindQuest, Text: "x", Tags: []string{"xp"}, Actor: "me"})
	s.Append(ctx, AppendParams{NS: "app", Kind: model.KindPackOpen, Text: "y", Tags: []string{"loot"}, Actor: "me"})
	s.Append(ctx, AppendParams{NS: "app", Kind: model.KindBotScan, Text: "z", Tags: []string{"intel"}, Actor: "you"})

	byKind, _ := s.List(ctx, ListParams{NS: "app", Kind: model.KindQuest})
	if len(byKind) != 1 {
		t.Errorf("expected 1 quest, got %d", len(byKind))
	}
	byTag, _ := s.List(ctx, ListParams{NS: "app", Tags: []string{"loot"}})
	if len(byTag) != 1 || byTag[0].Text != "y" {
		t.Errorf("expected loot event, got %+v", byTag)
	}
	byActor, _ := s.List(ctx, ListParams{NS: "app", Actor: "me"})
	if len(byActor) != 2 {
		t.Errorf("expected 2 events by me, got %d", len(byActor))
	}
	limited, _ := s.List(ctx, ListParams{NS: "app", Limit: 2})
	if len(limited) != 2 {
		t.Errorf("expected limit 2, got %d", len(limited))
	}
}

func TestListTagIsExact(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, tag := range []string{"a_c", "abc", "100%", "1000"} {
		s.Append(ctx, AppendParams{NS: "app", Text: "tagged " + tag, Tags: []string{tag}, Actor: "me"})
	}

	for _, tag := range []string{"a_c", "100%"} {
		got, err := s.List(ctx, ListParams{NS: "app", Tags: []string{tag}})
		if err != nil {
			t.Fatalf("list %q: %v", tag, err)
		}
		if len(got) != 1 || got[0].Text != "tagged "+tag {
			t.Errorf("tag %q: expected only its own event, got %+v", tag, got)
		}
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath, Options{})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestUIDPersistence(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.LoadUID(ctx); !errors.Is(err, identity.ErrNoUID) {
		t.Fatalf("expected ErrNoUID, got %v", err)
	}
	if got, err := s.SaveUID(ctx, "uid-1"); err != nil || got != "uid-1" {
		t.Fatalf("save: %q %v", got, err)
	}
	if got, _ := s.SaveUID(ctx, "uid-2"); got != "uid-1" {
		t.Errorf("second save should return the first uid, got %q", got)
	}

	uid, err := s.LoadUID(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if uid != "uid-1" {
		t.Errorf("expected first uid to stick, got %q", uid)
	}
}

func TestFirstSignInsAgreeAcrossStores(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	var providers []*identity.LocalProvider
	for range 2 {
		s, err := NewSQLiteStore(dbPath, Options{})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		p, err := identity.NewLocalProvider(ctx, s)
		if err != nil {
			t.Fatalf("provider: %v", err)
		}
		providers = append(providers, p)
	}

	a, err := providers[0].SignInAnonymously(ctx)
	if err != nil {
		t.Fatalf("sign in a: %v", err)
	}
	b, err := providers[1].SignInAnonymously(ctx)
	if err != nil {
		t.Fatalf("sign in b: %v", err)
	}
	if a != b {
		t.Errorf("providers split identity: %q vs %q", a, b)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
