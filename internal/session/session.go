// Package session owns one user's running state: the wallet, the displayed
// feed, the bot and the diagnostics. It is the only place they are mutated.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/spawn-mesh/internal/bot"
	"github.com/rcliao/spawn-mesh/internal/clock"
	"github.com/rcliao/spawn-mesh/internal/feed"
	"github.com/rcliao/spawn-mesh/internal/identity"
	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/reward"
	"github.com/rcliao/spawn-mesh/internal/store"
	"github.com/rcliao/spawn-mesh/internal/wallet"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Change says why the visible state changed.
type Change string

const (
	ChangeLocal      Change = "local"
	ChangeBatch      Change = "batch"
	ChangeBot        Change = "bot"
	ChangeIdentity   Change = "identity"
	ChangeDiagnostic Change = "diagnostic"
)

// Options configures a Session. Zero values take the defaults.
type Options struct {
	NS           string
	FeedLimit    int
	InventoryCap int
	Table        reward.Table
	RewardRand   reward.Source
	Bot          bot.Options
	Clock        clock.Clock
	Logger       *slog.Logger

	// OnChange is called after every visible change, outside the session
	// lock. It may call View and Diagnostics. A ChangeBot call runs on the
	// bot's timer and must not toggle the bot.
	OnChange func(Change)
}

// View is a point-in-time copy of everything a renderer shows.
type View struct {
	UID         string       `json:"uid,omitempty"`
	Wallet      model.Wallet `json:"wallet"`
	Feed        []feed.Entry `json:"feed"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	BotActive   bool         `json:"bot_active"`
	Subscribed  bool         `json:"subscribed"`
}

// PackResult describes one opened pack.
type PackResult struct {
	Tier   model.RewardTier `json:"tier"`
	XPGain int              `json:"xp_gain"`
	Event  model.MeshEvent  `json:"event"`
	Wallet model.Wallet     `json:"wallet"`
}

// CheckInResult describes one check-in.
type CheckInResult struct {
	Event  model.MeshEvent `json:"event"`
	Wallet model.Wallet    `json:"wallet"`
}

// feedSub is one subscription attempt. failed is set under Session.mu when
// its listener reports an error, even before SubscribeRecent has returned.
type feedSub struct {
	sub    store.Subscription
	failed bool
}

// Session is the state container for one running front end.
type Session struct {
	ns       string
	log      store.EventLog
	ids      identity.Provider
	roller   *reward.Roller
	bot      *bot.Actor
	clock    clock.Clock
	logger   *slog.Logger
	onChange func(Change)
	limit    int

	ctx     context.Context
	cancel  context.CancelFunc
	appends errgroup.Group

	mu      sync.Mutex
	wallet  *wallet.State
	feed    *feed.Feed
	diags   []Diagnostic
	uid     string
	sub     *feedSub
	unwatch func()
	botOn   bool
	started bool
	closed  bool
}

// New builds a session over an event log and an identity provider. Call
// Start to sign in and subscribe, and Close to release everything.
func New(log store.EventLog, ids identity.Provider, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Table.Thresholds == nil {
		opts.Table = reward.DefaultTable
	}
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = feed.DefaultCap
	}
	if opts.OnChange == nil {
		opts.OnChange = func(Change) {}
	}
	if opts.Bot.Clock == nil {
		opts.Bot.Clock = opts.Clock
	}
	if opts.Bot.Logger == nil {
		opts.Bot.Logger = opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ns:       opts.NS,
		log:      log,
		ids:      ids,
		roller:   reward.NewRoller(opts.Table, opts.RewardRand),
		clock:    opts.Clock,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		limit:    opts.FeedLimit,
		ctx:      ctx,
		cancel:   cancel,
		wallet:   wallet.New(opts.InventoryCap),
		feed:     feed.New(opts.FeedLimit),
	}
	s.bot = bot.New(opts.Bot, s.emitBot)
	return s
}

// Start watches the identity provider. When no user is signed in it signs
// in anonymously; once a uid is known it subscribes to the feed. Failures
// become diagnostics, never errors.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	unwatch := s.ids.Watch(func(uid string, ok bool) { s.onAuth(ctx, uid, ok) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unwatch()
		return ErrClosed
	}
	s.unwatch = unwatch
	s.mu.Unlock()
	return nil
}

func (s *Session) onAuth(ctx context.Context, uid string, ok bool) {
	if !ok {
		if _, err := s.ids.SignInAnonymously(ctx); err != nil {
			s.diagnose(DiagIdentity, err)
		}
		return
	}

	s.mu.Lock()
	if s.closed || s.uid == uid {
		s.mu.Unlock()
		return
	}
	s.uid = uid
	s.wallet.SetAddress(identity.DisplayAddress(uid))
	subscribed := s.sub != nil
	s.mu.Unlock()

	s.logger.Info("signed in", "address", identity.DisplayAddress(uid))
	s.onChange(ChangeIdentity)
	if !subscribed {
		s.subscribe()
	}
}

// Resubscribe drops any current subscription and opens a new one. Feed
// subscriptions are never re-established automatically.
func (s *Session) Resubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.sub
	s.sub = nil
	s.mu.Unlock()

	if old != nil {
		old.sub.Close()
	}
	s.subscribe()
	return nil
}

func (s *Session) subscribe() {
	fs := &feedSub{}
	sub, err := s.log.SubscribeRecent(s.ctx,
		store.SubscribeParams{NS: s.ns, Limit: s.limit},
		store.Listener{
			OnBatch: s.onBatch,
			OnError: func(err error) { s.onSubscriptionError(fs, err) },
		})
	if err != nil {
		s.diagnose(DiagSubscription, err)
		return
	}

	s.mu.Lock()
	if s.closed || fs.failed {
		s.mu.Unlock()
		sub.Close()
		return
	}
	fs.sub = sub
	s.sub = fs
	s.mu.Unlock()
	s.onChange(ChangeBatch)
}

func (s *Session) onBatch(batch []model.MeshEvent) {
	s.mu.Lock()
	changed := !s.closed && s.feed.Replace(batch)
	s.mu.Unlock()
	if changed {
		s.onChange(ChangeBatch)
	}
}

func (s *Session) onSubscriptionError(fs *feedSub, err error) {
	s.mu.Lock()
	fs.failed = true
	if s.sub == fs {
		s.sub = nil
	}
	s.mu.Unlock()
	s.diagnose(DiagSubscription, err)
}

// CheckIn grants the daily bonus and publishes a quest event.
func (s *Session) CheckIn() (CheckInResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return CheckInResult{}, ErrClosed
	}
	evt := s.recordLocked(s.wallet.CheckIn())
	res := CheckInResult{Event: evt, Wallet: s.wallet.Snapshot()}
	s.mu.Unlock()

	s.onChange(ChangeLocal)
	return res, nil
}

// OpenPack rolls one reward and publishes a pack_open event.
func (s *Session) OpenPack() (PackResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return PackResult{}, ErrClosed
	}
	tier, gain, draft := s.wallet.OpenPack(s.roller)
	evt := s.recordLocked(draft)
	res := PackResult{Tier: tier, XPGain: gain, Event: evt, Wallet: s.wallet.Snapshot()}
	s.mu.Unlock()

	s.logger.Debug("pack opened", "tier", tier.ID(), "xp_gain", gain)
	s.onChange(ChangeLocal)
	return res, nil
}

// SetBotActive turns the automated actor on or off.
func (s *Session) SetBotActive(on bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.botOn = on
	s.mu.Unlock()

	s.bot.SetActive(on)
	s.onChange(ChangeLocal)
	return nil
}

func (s *Session) BotActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.botOn
}

// emitBot runs on the bot's timer. Bot actions are attributed to the
// session's own address.
func (s *Session) emitBot(d model.Draft) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.recordLocked(d)
	s.mu.Unlock()
	s.onChange(ChangeBot)
}

// recordLocked shows d at once as an optimistic entry and appends it in the
// background. A failed append leaves the entry and the wallet untouched and
// only adds a diagnostic.
func (s *Session) recordLocked(d model.Draft) model.MeshEvent {
	evt := s.feed.Optimistic(d, s.wallet.Address(), s.clock.Now())
	params := store.AppendParams{
		NS:      s.ns,
		Kind:    evt.Kind,
		Text:    evt.Text,
		Tags:    evt.Tags,
		Actor:   evt.Actor,
		Version: evt.Version,
	}
	s.appends.Go(func() error {
		if _, err := s.log.Append(s.ctx, params); err != nil {
			s.diagnose(DiagAppend, err)
		}
		return nil
	})
	return evt
}

// View returns a copy of the visible state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		UID:         s.uid,
		Wallet:      s.wallet.Snapshot(),
		Feed:        s.feed.Entries(),
		Diagnostics: append([]Diagnostic(nil), s.diags...),
		BotActive:   s.botOn,
		Subscribed:  s.sub != nil,
	}
}

// Close disables the bot, ends the feed subscription, stops the identity
// watch and waits for in-flight appends. It is safe to call more than once
// and View keeps working afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.botOn = false
	sub, unwatch := s.sub, s.unwatch
	s.sub, s.unwatch = nil, nil
	s.mu.Unlock()

	s.bot.Disable()
	if sub != nil {
		sub.sub.Close()
	}
	if unwatch != nil {
		unwatch()
	}
	err := s.appends.Wait()
	s.cancel()
	return err
}

// Now is the session clock's current time.
func (s *Session) Now() time.Time { return s.clock.Now() }
