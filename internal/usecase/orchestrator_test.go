package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"OptionPulse/internal/domain/models"
	"OptionPulse/internal/services/analytics"
	"OptionPulse/pkg/logger"
	"OptionPulse/pkg/util"
)

// --- fakes ---

type fakeFeed struct {
	chain    *models.Chain
	chainErr error
	prev     *models.OHLC
	open     *models.OHLC
	delay    time.Duration
	// deadlines, when set, receives whether each FetchChain context carried
	// a deadline.
	deadlines chan bool
}

func (f *fakeFeed) FetchChain(ctx context.Context, token, expiry string) (*models.Chain, error) {
	if f.deadlines != nil {
		_, ok := ctx.Deadline()
		select {
		case f.deadlines <- ok:
		default:
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chain, nil
}

func (f *fakeFeed) FetchPrevDayOHLC(ctx context.Context, token string, before time.Time) (*models.OHLC, error) {
	return f.prev, nil
}

func (f *fakeFeed) FetchOpenCandle(ctx context.Context, token string, day time.Time) (*models.OHLC, error) {
	return f.open, nil
}

type fakeCreds struct {
	mu    sync.Mutex
	creds map[string]*models.Credential
}

func (f *fakeCreds) Get(ctx context.Context, username string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[username], nil
}

func (f *fakeCreds) Put(ctx context.Context, cred *models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creds == nil {
		f.creds = map[string]*models.Credential{}
	}
	f.creds[cred.Username] = cred
	return nil
}

func (f *fakeCreds) Delete(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, username)
	return nil
}

func (f *fakeCreds) Users(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.creds))
	for u := range f.creds {
		out = append(out, u)
	}
	return out, nil
}

type fakeBaselines struct {
	mu   sync.Mutex
	rows map[string]*models.BaselineSnapshot
}

func (f *fakeBaselines) key(user, date string) string { return user + "|" + date }

func (f *fakeBaselines) Get(ctx context.Context, username, date string) (*models.BaselineSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[f.key(username, date)], nil
}

func (f *fakeBaselines) Put(ctx context.Context, snap *models.BaselineSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]*models.BaselineSnapshot{}
	}
	f.rows[f.key(snap.Username, snap.Date)] = snap
	return nil
}

func (f *fakeBaselines) Delete(ctx context.Context, username, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, f.key(username, date))
	return nil
}

type fakeSettings struct {
	mu   sync.Mutex
	rows map[string]*models.Settings
}

func (f *fakeSettings) Get(ctx context.Context, username string) (*models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[username], nil
}

func (f *fakeSettings) Put(ctx context.Context, s *models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]*models.Settings{}
	}
	f.rows[s.Username] = s
	return nil
}

type fakeSignalLog struct {
	mu     sync.Mutex
	events []*models.SignalEvent
}

func (f *fakeSignalLog) Append(ctx context.Context, ev *models.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSignalLog) List(ctx context.Context, username string, from, to time.Time, limit int) ([]*models.SignalEvent, error) {
	return nil, nil
}

func (f *fakeSignalLog) Health(ctx context.Context) error { return nil }
func (f *fakeSignalLog) Close() error                     { return nil }

type fakeBroadcaster struct {
	mu    sync.Mutex
	snaps []*models.PublishedSnapshot
	// onBroadcast lets a test observe orchestrator state mid-broadcast.
	onBroadcast func(*models.PublishedSnapshot)
}

func (f *fakeBroadcaster) Broadcast(snap *models.PublishedSnapshot) {
	f.mu.Lock()
	f.snaps = append(f.snaps, snap)
	cb := f.onBroadcast
	f.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
}

func (f *fakeBroadcaster) Subscribers() int { return 1 }

type fakeSink struct {
	mu    sync.Mutex
	snaps []*models.PublishedSnapshot
}

func (f *fakeSink) Enqueue(snap *models.PublishedSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
}

type fakeMetrics struct{}

func (fakeMetrics) RecordCycle(username, outcome string, seconds float64) {}
func (fakeMetrics) RecordFetchError(kind string)                          {}
func (fakeMetrics) RecordSignalFired(username, position string)           {}
func (fakeMetrics) RecordUnderlyingPrice(username string, price float64)  {}
func (fakeMetrics) RecordVolatilityState(username, state string)          {}
func (fakeMetrics) RecordSubscribers(n int)                               {}
func (fakeMetrics) RecordPersistError(kind string)                        {}
func (fakeMetrics) RecordPersistQueueDepth(n int)                         {}

// --- fixtures ---

type fixture struct {
	orch      *Orchestrator
	feed      *fakeFeed
	baselines *fakeBaselines
	settings  *fakeSettings
	signals   *fakeSignalLog
	broadcast *fakeBroadcaster
	sink      *fakeSink
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newFixture(t *testing.T, feed *fakeFeed, lockTimeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		feed:      feed,
		baselines: &fakeBaselines{},
		settings:  &fakeSettings{},
		signals:   &fakeSignalLog{},
		broadcast: &fakeBroadcaster{},
		sink:      &fakeSink{},
	}
	f.orch = NewOrchestrator(OrchestratorDeps{
		Logger:      testLogger(t),
		Feed:        feed,
		Creds:       &fakeCreds{},
		Baselines:   f.baselines,
		Settings:    f.settings,
		SignalLog:   f.signals,
		Broadcast:   f.broadcast,
		Sink:        f.sink,
		Metrics:     fakeMetrics{},
		Aggregator:  analytics.NewAggregator(),
		Volatility:  analytics.NewVolEngine(),
		Direction:   analytics.NewDirEngine(),
		Signals:     analytics.NewSignalEngine(),
		LockTimeout: lockTimeout,
	})
	return f
}

func testChain(now time.Time, callDelta float64) *models.Chain {
	return &models.Chain{
		Timestamp:       now,
		UnderlyingPrice: 24500,
		ATMStrike:       24500,
		ExpiryDate:      "2026-08-25",
		Options: []models.Option{
			{Strike: 24500, Type: models.OptionCall, Delta: callDelta, Vega: 0.1, Theta: -0.02, Gamma: 0.01, LTP: 120},
			{Strike: 24500, Type: models.OptionPut, Delta: -0.5, Vega: 0.1, Theta: -0.02, Gamma: 0.01, LTP: 115},
		},
	}
}

// --- tests ---

func TestRunCycleWithoutSession(t *testing.T) {
	f := newFixture(t, &fakeFeed{}, 0)
	if err := f.orch.RunCycle(context.Background(), time.Now()); err != ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestRunCyclePublishesSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC) // Monday, market hours IST
	feed := &fakeFeed{
		chain: testChain(now, 0.5),
		prev:  &models.OHLC{Open: 24300, High: 24600, Low: 24200, Close: 24450},
		open:  &models.OHLC{Open: 24480},
	}
	f := newFixture(t, feed, 0)
	f.orch.Activate(&models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: now}, now)

	if err := f.orch.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	snap := f.orch.Latest()
	if snap == nil {
		t.Fatal("no snapshot after successful cycle")
	}
	if snap.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", snap.Sequence)
	}
	if snap.OpenPrice != 24480 {
		t.Fatalf("open price = %v, want candle open 24480", snap.OpenPrice)
	}
	if snap.Baseline == nil || snap.Baseline.Call.Delta != 0.5 {
		t.Fatalf("baseline not captured: %+v", snap.Baseline)
	}
	// First cycle: drift against the just-captured baseline is zero.
	if snap.Drift == nil || snap.Drift.Call.Delta != 0 {
		t.Fatalf("drift = %+v, want zeros", snap.Drift)
	}
	if len(f.broadcast.snaps) != 1 || len(f.sink.snaps) != 1 {
		t.Fatalf("broadcast/sink = %d/%d, want 1/1", len(f.broadcast.snaps), len(f.sink.snaps))
	}

	// Baseline persisted for the IST date.
	row, _ := f.baselines.Get(context.Background(), "alice", util.ISTDate(now))
	if !row.Valid() {
		t.Fatal("baseline row not persisted")
	}
	// Previous-day stats stamped onto the settings row.
	s, _ := f.settings.Get(context.Background(), "alice")
	if s == nil || s.PrevDayClose != 24450 || s.PrevDayRange != 400 {
		t.Fatalf("prev-day stats = %+v", s)
	}

	// Second cycle reuses baseline and bumps the sequence.
	if err := f.orch.RunCycle(context.Background(), now.Add(5*time.Second)); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if got := f.orch.Latest().Sequence; got != 2 {
		t.Fatalf("sequence = %d, want 2", got)
	}
}

func TestBaselineSkippedWhenCallDeltaZero(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	feed := &fakeFeed{chain: testChain(now, 0)}
	f := newFixture(t, feed, 0)
	f.orch.Activate(&models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: now}, now)

	if err := f.orch.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	snap := f.orch.Latest()
	if snap.Baseline != nil {
		t.Fatalf("zero call delta must not become baseline: %+v", snap.Baseline)
	}
	// Without a baseline the drift is a zero struct, not null; downstream
	// consumers rely on the stable shape.
	if snap.Drift == nil {
		t.Fatal("drift must be present even before a baseline exists")
	}
	if snap.Drift.Call.Delta != 0 || snap.Drift.Put.Delta != 0 || snap.Drift.Call.Vega != 0 {
		t.Fatalf("pre-baseline drift = %+v, want all zeros", snap.Drift)
	}
	if row, _ := f.baselines.Get(context.Background(), "alice", util.ISTDate(now)); row != nil {
		t.Fatal("invalid baseline persisted")
	}

	// The next cycle with valid data captures it.
	feed.chain = testChain(now.Add(5*time.Second), 0.5)
	if err := f.orch.RunCycle(context.Background(), now.Add(5*time.Second)); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if f.orch.Latest().Baseline == nil {
		t.Fatal("baseline not recaptured once valid")
	}
}

func TestSingleFlightRejectsOverlap(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	feed := &fakeFeed{chain: testChain(now, 0.5), delay: 500 * time.Millisecond}
	f := newFixture(t, feed, 50*time.Millisecond)
	f.orch.Activate(&models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: now}, now)

	done := make(chan error, 1)
	go func() {
		done <- f.orch.RunCycle(context.Background(), now)
	}()

	// Give the first cycle time to take the lock and sit in the feed.
	time.Sleep(100 * time.Millisecond)
	if err := f.orch.RunCycle(context.Background(), now); err != ErrCycleInFlight {
		t.Fatalf("overlapping cycle err = %v, want ErrCycleInFlight", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestLatestAssignedBeforeBroadcast(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	feed := &fakeFeed{chain: testChain(now, 0.5)}
	f := newFixture(t, feed, 0)
	f.orch.Activate(&models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: now}, now)

	var seen *models.PublishedSnapshot
	f.broadcast.onBroadcast = func(snap *models.PublishedSnapshot) {
		seen = f.orch.Latest()
	}

	if err := f.orch.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if seen == nil || seen != f.orch.Latest() {
		t.Fatal("Latest() must already return the new snapshot during broadcast")
	}
}

func TestResetBaselineClearsRowAndState(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	feed := &fakeFeed{chain: testChain(now, 0.5)}
	f := newFixture(t, feed, 0)
	f.orch.Activate(&models.Credential{Username: "alice", AccessToken: "tok", IssuedAt: now}, now)

	if err := f.orch.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := f.orch.state.History.Len(); got != 1 {
		t.Fatalf("history before reset = %d samples, want 1", got)
	}
	if err := f.orch.ResetBaseline(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if row, _ := f.baselines.Get(context.Background(), "alice", util.ISTDate(now)); row != nil {
		t.Fatal("persisted baseline row survived reset")
	}
	// The reset also wipes the price buffers and the derived day open so the
	// engines start over from live data.
	if got := f.orch.state.History.Len(); got != 0 {
		t.Fatalf("history after reset = %d samples, want 0", got)
	}
	if f.orch.state.OpenPrice != 0 || f.orch.state.OpenAuthoritative() {
		t.Fatalf("open price survived reset: %v", f.orch.state.OpenPrice)
	}

	// Next cycle recaptures from live data.
	if err := f.orch.RunCycle(context.Background(), now.Add(5*time.Second)); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if f.orch.Latest().Baseline == nil {
		t.Fatal("baseline not recaptured after reset")
	}
	if got := f.orch.state.History.Len(); got != 1 {
		t.Fatalf("history after recapture cycle = %d samples, want 1", got)
	}
	if f.orch.state.OpenPrice == 0 {
		t.Fatal("open price not re-derived after reset")
	}
}

func TestActivateSwitchesUser(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	f := newFixture(t, &fakeFeed{chain: testChain(now, 0.5)}, 0)

	if !f.orch.Activate(&models.Credential{Username: "alice", IssuedAt: now}, now) {
		t.Fatal("first activation should report a switch")
	}
	if f.orch.Activate(&models.Credential{Username: "alice", IssuedAt: now}, now) {
		t.Fatal("same user re-activation should not report a switch")
	}
	if !f.orch.Activate(&models.Credential{Username: "bob", IssuedAt: now}, now) {
		t.Fatal("user change should report a switch")
	}
	if f.orch.CurrentUser() != "bob" {
		t.Fatalf("current user = %q, want bob", f.orch.CurrentUser())
	}
}
