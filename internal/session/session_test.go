package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/spawn-mesh/internal/bot"
	"github.com/rcliao/spawn-mesh/internal/clock"
	"github.com/rcliao/spawn-mesh/internal/feed"
	"github.com/rcliao/spawn-mesh/internal/identity"
	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/store"
)

type fakeLog struct {
	mu        sync.Mutex
	appended  []store.AppendParams
	appendErr error
	subErr    error
	dropErr   error
	listener  store.Listener
	subs      int
	closed    int
}

func (f *fakeLog) Append(ctx context.Context, p store.AppendParams) (*model.MeshEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, p)
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	return &model.MeshEvent{ID: "x", NS: p.NS, Kind: p.Kind, Text: p.Text, Actor: p.Actor}, nil
}

// SubscribeRecent registers l. With dropErr set, the subscription dies
// before the call returns, as when the store's watcher fails right away.
func (f *fakeLog) SubscribeRecent(ctx context.Context, p store.SubscribeParams, l store.Listener) (store.Subscription, error) {
	f.mu.Lock()
	if f.subErr != nil {
		f.mu.Unlock()
		return nil, f.subErr
	}
	f.subs++
	f.listener = l
	dropErr := f.dropErr
	f.mu.Unlock()

	if dropErr != nil {
		l.OnError(dropErr)
	}
	return fakeSub{f}, nil
}

func (f *fakeLog) deliver(batch []model.MeshEvent) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l.OnBatch(batch)
}

func (f *fakeLog) fail(err error) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l.OnError(err)
}

func (f *fakeLog) appends() []store.AppendParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.AppendParams(nil), f.appended...)
}

type fakeSub struct{ f *fakeLog }

func (s fakeSub) Close() {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
}

type memUIDStore struct {
	mu      sync.Mutex
	uid     string
	saveErr error
}

func (m *memUIDStore) LoadUID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uid == "" {
		return "", identity.ErrNoUID
	}
	return m.uid, nil
}

func (m *memUIDStore) SaveUID(ctx context.Context, uid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	if m.uid == "" {
		m.uid = uid
	}
	return m.uid, nil
}

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sess  *Session
	log   *fakeLog
	uids  *memUIDStore
	clock *clock.FakeClock
}

func newFixture(t *testing.T, uids *memUIDStore, log *fakeLog) *fixture {
	t.Helper()
	if uids == nil {
		uids = &memUIDStore{}
	}
	if log == nil {
		log = &fakeLog{}
	}
	ids, err := identity.NewLocalProvider(context.Background(), uids)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	c := clock.Fake(epoch)
	s := New(log, ids, Options{
		NS:         "app",
		FeedLimit:  30,
		RewardRand: constRand(0.99),
		Bot:        bot.Options{Rand: constRand(0.99)},
		Clock:      c,
	})
	t.Cleanup(func() { s.Close() })
	return &fixture{sess: s, log: log, uids: uids, clock: c}
}

func TestStartSignsInAndSubscribes(t *testing.T) {
	fx := newFixture(t, nil, nil)
	if err := fx.sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	v := fx.sess.View()
	if v.UID == "" || v.UID != fx.uids.uid {
		t.Fatalf("expected persisted uid, got %q", v.UID)
	}
	if v.Wallet.Address != identity.DisplayAddress(v.UID) {
		t.Errorf("expected display address, got %q", v.Wallet.Address)
	}
	if !v.Subscribed || fx.log.subs != 1 {
		t.Errorf("expected one subscription, got subscribed=%v subs=%d", v.Subscribed, fx.log.subs)
	}
	if len(v.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics %v", v.Diagnostics)
	}

	// Starting twice does not subscribe twice.
	fx.sess.Start(context.Background())
	if fx.log.subs != 1 {
		t.Errorf("expected still one subscription, got %d", fx.log.subs)
	}
}

func TestStartReusesSavedUID(t *testing.T) {
	fx := newFixture(t, &memUIDStore{uid: "abcdef0123456789wxyz"}, nil)
	fx.sess.Start(context.Background())

	if got := fx.sess.View().Wallet.Address; got != "abcdef...wxyz" {
		t.Errorf("expected address from saved uid, got %q", got)
	}
}

func TestOpenPackOptimisticThenCanonical(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())
	before := fx.sess.View().Wallet

	res, err := fx.sess.OpenPack()
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	if res.Tier != model.Relic {
		t.Errorf("expected relic from 0.99 roll, got %s", res.Tier)
	}
	if res.XPGain != res.Tier.XPGain() || res.Wallet.XP != before.XP+res.XPGain {
		t.Errorf("xp not applied: gain=%d before=%d after=%d", res.XPGain, before.XP, res.Wallet.XP)
	}
	if len(res.Wallet.Inventory) != len(before.Inventory)+1 {
		t.Errorf("expected one new inventory item")
	}

	v := fx.sess.View()
	if len(v.Feed) != 1 || v.Feed[0].State != feed.Optimistic {
		t.Fatalf("expected one optimistic entry, got %+v", v.Feed)
	}
	if !strings.HasPrefix(v.Feed[0].Event.ID, feed.TempIDPrefix) || v.Feed[0].Event.Kind != model.KindPackOpen {
		t.Errorf("unexpected optimistic event %+v", v.Feed[0].Event)
	}

	batch := []model.MeshEvent{
		{ID: "c3", Kind: model.KindPackOpen, Text: res.Event.Text, OccurredAt: epoch.Add(3 * time.Second)},
		{ID: "c2", Kind: model.KindQuest, Text: "older", OccurredAt: epoch.Add(2 * time.Second)},
		{ID: "c1", Kind: model.KindBotScan, Text: "oldest", OccurredAt: epoch.Add(time.Second)},
	}
	fx.log.deliver(batch)

	v = fx.sess.View()
	if len(v.Feed) != 3 {
		t.Fatalf("expected the canonical batch, got %d entries", len(v.Feed))
	}
	for i, e := range v.Feed {
		if e.State != feed.Canonical || e.Event.ID != batch[i].ID {
			t.Errorf("entry %d: got %s %s, want canonical %s", i, e.State, e.Event.ID, batch[i].ID)
		}
	}

	fx.sess.Close()
	appended := fx.log.appends()
	if len(appended) != 1 || appended[0].NS != "app" || appended[0].Kind != model.KindPackOpen {
		t.Errorf("unexpected appends %+v", appended)
	}
}

func TestCheckIn(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())
	before := fx.sess.View().Wallet

	res, err := fx.sess.CheckIn()
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.Wallet.Streak != before.Streak+1 || res.Wallet.XP != before.XP+50 {
		t.Errorf("unexpected wallet after check-in %+v", res.Wallet)
	}
	if res.Event.Kind != model.KindQuest || res.Event.Actor != before.Address {
		t.Errorf("unexpected check-in event %+v", res.Event)
	}
}

func TestAppendFailureKeepsLocalState(t *testing.T) {
	fx := newFixture(t, nil, &fakeLog{appendErr: errors.New("permission denied")})
	fx.sess.Start(context.Background())

	res, _ := fx.sess.OpenPack()
	fx.sess.Close()

	v := fx.sess.View()
	if v.Wallet.XP != res.Wallet.XP {
		t.Errorf("wallet rolled back: %d != %d", v.Wallet.XP, res.Wallet.XP)
	}
	if len(v.Feed) != 1 || v.Feed[0].State != feed.Optimistic {
		t.Errorf("expected the optimistic entry to remain, got %+v", v.Feed)
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Kind != DiagAppend {
		t.Fatalf("expected one append diagnostic, got %v", v.Diagnostics)
	}
	if !strings.Contains(v.Diagnostics[0].Message, "permission denied") {
		t.Errorf("diagnostic lost the cause: %q", v.Diagnostics[0].Message)
	}
}

func TestSubscribeFailureThenResubscribe(t *testing.T) {
	log := &fakeLog{subErr: errors.New("offline")}
	fx := newFixture(t, nil, log)
	fx.sess.Start(context.Background())

	v := fx.sess.View()
	if v.Subscribed {
		t.Fatal("should not be subscribed")
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Kind != DiagSubscription {
		t.Fatalf("expected subscription diagnostic, got %v", v.Diagnostics)
	}

	// Local actions still work without a subscription.
	if _, err := fx.sess.CheckIn(); err != nil {
		t.Fatalf("check in: %v", err)
	}

	log.mu.Lock()
	log.subErr = nil
	log.mu.Unlock()
	if err := fx.sess.Resubscribe(); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if !fx.sess.View().Subscribed {
		t.Error("expected subscription after resubscribe")
	}
}

func TestSubscriptionErrorEndsSubscription(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())

	fx.log.fail(errors.New("stream reset"))

	v := fx.sess.View()
	if v.Subscribed {
		t.Error("subscription should be gone after an error")
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Kind != DiagSubscription {
		t.Errorf("expected subscription diagnostic, got %v", v.Diagnostics)
	}
	if fx.log.subs != 1 {
		t.Errorf("should not resubscribe on its own, got %d subscriptions", fx.log.subs)
	}
}

func TestSubscriptionDyingDuringSubscribe(t *testing.T) {
	fx := newFixture(t, nil, &fakeLog{dropErr: errors.New("watch lost")})
	fx.sess.Start(context.Background())

	v := fx.sess.View()
	if v.Subscribed {
		t.Error("a subscription that already failed must not be installed")
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Kind != DiagSubscription {
		t.Errorf("expected one subscription diagnostic, got %v", v.Diagnostics)
	}
	if fx.log.closed != 1 {
		t.Errorf("expected the dead subscription to be closed, got %d", fx.log.closed)
	}
}

func TestStaleSubscriptionErrorKeepsCurrent(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())

	fx.log.mu.Lock()
	stale := fx.log.listener
	fx.log.mu.Unlock()
	fx.sess.Resubscribe()

	stale.OnError(errors.New("old stream reset"))
	if !fx.sess.View().Subscribed {
		t.Error("an error from the replaced subscription dropped the current one")
	}
}

func TestResubscribeClosesOld(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())

	fx.sess.Resubscribe()
	if fx.log.subs != 2 || fx.log.closed != 1 {
		t.Errorf("expected old subscription closed, got subs=%d closed=%d", fx.log.subs, fx.log.closed)
	}
}

func TestIdentityFailure(t *testing.T) {
	fx := newFixture(t, &memUIDStore{saveErr: errors.New("disk full")}, nil)
	fx.sess.Start(context.Background())

	v := fx.sess.View()
	if v.UID != "" || v.Subscribed {
		t.Errorf("expected no identity and no subscription, got %+v", v)
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Kind != DiagIdentity {
		t.Fatalf("expected identity diagnostic, got %v", v.Diagnostics)
	}

	res, err := fx.sess.OpenPack()
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	if res.Event.Actor != model.AnonActor {
		t.Errorf("expected anonymous actor, got %q", res.Event.Actor)
	}
}

func TestBotActsAsUser(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())
	addr := fx.sess.View().Wallet.Address

	if err := fx.sess.SetBotActive(true); err != nil {
		t.Fatalf("enable bot: %v", err)
	}
	if !fx.sess.View().BotActive {
		t.Fatal("bot should be active")
	}
	fx.clock.Advance(bot.DefaultInterval)

	v := fx.sess.View()
	if len(v.Feed) != 1 {
		t.Fatalf("expected one bot entry, got %d", len(v.Feed))
	}
	if e := v.Feed[0].Event; e.Actor != addr || e.Kind != model.KindMeshSync {
		t.Errorf("unexpected bot event %+v", e)
	}

	fx.clock.Advance(2 * bot.DefaultInterval)
	if n := len(fx.sess.View().Feed); n != 3 {
		t.Fatalf("expected one entry per interval, got %d", n)
	}

	fx.sess.SetBotActive(false)
	fx.clock.Advance(10 * bot.DefaultInterval)
	if n := len(fx.sess.View().Feed); n != 3 {
		t.Errorf("disabled bot kept acting: %d entries", n)
	}
}

func TestDismiss(t *testing.T) {
	fx := newFixture(t, nil, &fakeLog{subErr: errors.New("a")})
	fx.sess.Start(context.Background())
	fx.sess.Resubscribe()

	if n := len(fx.sess.Diagnostics()); n != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", n)
	}
	if fx.sess.Dismiss(5) {
		t.Error("out of range dismiss should fail")
	}
	if !fx.sess.Dismiss(0) {
		t.Fatal("dismiss 0 failed")
	}
	if n := len(fx.sess.Diagnostics()); n != 1 {
		t.Errorf("expected 1 diagnostic left, got %d", n)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.sess.Start(context.Background())
	fx.sess.SetBotActive(true)

	if err := fx.sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := fx.sess.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if fx.log.closed != 1 {
		t.Errorf("expected subscription closed once, got %d", fx.log.closed)
	}
	if fx.sess.View().BotActive {
		t.Error("bot should be disabled after close")
	}
	if fx.clock.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", fx.clock.Pending())
	}
	if _, err := fx.sess.CheckIn(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := fx.sess.SetBotActive(true); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Batches arriving after close are ignored.
	fx.log.deliver([]model.MeshEvent{{ID: "late"}})
	if n := len(fx.sess.View().Feed); n != 0 {
		t.Errorf("expected empty feed, got %d", n)
	}
}

func TestOnChange(t *testing.T) {
	var mu sync.Mutex
	seen := map[Change]int{}
	ids, _ := identity.NewLocalProvider(context.Background(), &memUIDStore{})
	log := &fakeLog{}
	s := New(log, ids, Options{
		Clock: clock.Fake(epoch),
		OnChange: func(c Change) {
			mu.Lock()
			seen[c]++
			mu.Unlock()
		},
	})
	defer s.Close()

	s.Start(context.Background())
	s.CheckIn()
	log.deliver([]model.MeshEvent{{ID: "c1", OccurredAt: epoch}})

	mu.Lock()
	defer mu.Unlock()
	if seen[ChangeIdentity] != 1 || seen[ChangeLocal] != 1 || seen[ChangeBatch] == 0 {
		t.Errorf("unexpected change counts %v", seen)
	}
}

func TestBotChangeMayReadView(t *testing.T) {
	ids, _ := identity.NewLocalProvider(context.Background(), &memUIDStore{})
	c := clock.Fake(epoch)
	var s *Session
	views := 0
	s = New(&fakeLog{}, ids, Options{
		Clock: c,
		Bot:   bot.Options{Rand: constRand(0.99)},
		OnChange: func(ch Change) {
			if ch == ChangeBot {
				views += len(s.View().Feed)
			}
		},
	})
	defer s.Close()
	s.Start(context.Background())
	s.SetBotActive(true)

	c.Advance(bot.DefaultInterval)
	if views != 1 {
		t.Errorf("expected the bot change to see one entry, got %d", views)
	}
}
