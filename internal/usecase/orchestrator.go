package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creasty/defaults"

	"OptionPulse/internal/domain/models"
	"OptionPulse/internal/domain/repository"
	"OptionPulse/internal/domain/service"
	"OptionPulse/pkg/logger"
	"OptionPulse/pkg/util"
)

var (
	// ErrCycleInFlight is returned when the pipeline lock could not be
	// acquired within the lock timeout. One slow cycle must never stack a
	// second one behind it.
	ErrCycleInFlight = errors.New("pipeline cycle already in flight")

	// ErrNoSession is returned when RunCycle is invoked before any
	// credential has been activated.
	ErrNoSession = errors.New("no active session")
)

// SnapshotSink accepts a published snapshot for asynchronous persistence.
// The write-behind pipeline implements it; Enqueue never blocks the cycle.
type SnapshotSink interface {
	Enqueue(snap *models.PublishedSnapshot)
}

// Orchestrator runs the per-poll pipeline: fetch, history, aggregate,
// baseline, volatility, direction, signals, publish. It is single-flight; a
// capacity-one channel serves as the lock and acquisition gives up after
// lockTimeout rather than queueing cycles.
type Orchestrator struct {
	log *logger.Logger

	feed      repository.MarketFeed
	creds     repository.CredentialStore
	baselines repository.BaselineStore
	settings  repository.SettingsStore
	signalLog repository.SignalLog
	broadcast repository.Broadcaster
	sink      SnapshotSink
	metrics   repository.Metrics

	aggregator service.GreekAggregator
	vol        service.VolatilityEngine
	dir        service.DirectionEngine
	sig        service.SignalDetector

	lock        chan struct{}
	lockTimeout time.Duration
	enabled     atomic.Bool

	// stateMu guards the session pointer and credential for readers (API
	// handlers); the pipeline lock serializes all mutation.
	stateMu sync.RWMutex
	state   *SessionState
	cred    *models.Credential
}

type OrchestratorDeps struct {
	Logger     *logger.Logger
	Feed       repository.MarketFeed
	Creds      repository.CredentialStore
	Baselines  repository.BaselineStore
	Settings   repository.SettingsStore
	SignalLog  repository.SignalLog
	Broadcast  repository.Broadcaster
	Sink       SnapshotSink
	Metrics    repository.Metrics
	Aggregator service.GreekAggregator
	Volatility service.VolatilityEngine
	Direction  service.DirectionEngine
	Signals    service.SignalDetector

	LockTimeout time.Duration
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.LockTimeout == 0 {
		d.LockTimeout = 10 * time.Second
	}
	o := &Orchestrator{
		log:         d.Logger,
		feed:        d.Feed,
		creds:       d.Creds,
		baselines:   d.Baselines,
		settings:    d.Settings,
		signalLog:   d.SignalLog,
		broadcast:   d.Broadcast,
		sink:        d.Sink,
		metrics:     d.Metrics,
		aggregator:  d.Aggregator,
		vol:         d.Volatility,
		dir:         d.Direction,
		sig:         d.Signals,
		lock:        make(chan struct{}, 1),
		lockTimeout: d.LockTimeout,
	}
	o.enabled.Store(true)
	return o
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	t := time.NewTimer(o.lockTimeout)
	defer t.Stop()
	select {
	case o.lock <- struct{}{}:
		return nil
	case <-t.C:
		return ErrCycleInFlight
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.lock
}

// Enable resumes polling; Disable pauses it without tearing down session
// state, so a re-enable continues the same day seamlessly.
func (o *Orchestrator) Enable()  { o.enabled.Store(true) }
func (o *Orchestrator) Disable() { o.enabled.Store(false) }

func (o *Orchestrator) Enabled() bool { return o.enabled.Load() }

// Activate installs the credential's session, replacing any session that
// belongs to a different user. Returns true when the active user changed.
func (o *Orchestrator) Activate(cred *models.Credential, now time.Time) bool {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	if o.state != nil && o.state.Username == cred.Username {
		o.cred = cred
		return false
	}

	o.state = NewSessionState(cred.Username, now)
	o.cred = cred
	o.vol.Reset()
	o.sig.Reset()
	return true
}

// CurrentUser returns the active username, or "" when idle.
func (o *Orchestrator) CurrentUser() string {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state == nil {
		return ""
	}
	return o.state.Username
}

// Latest returns the most recent published snapshot, or nil before the first
// successful cycle.
func (o *Orchestrator) Latest() *models.PublishedSnapshot {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state == nil {
		return nil
	}
	return o.state.Latest
}

// LastSuccessAt returns the wall time of the last completed cycle.
func (o *Orchestrator) LastSuccessAt() time.Time {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state == nil {
		return time.Time{}
	}
	return o.state.LastSuccessAt
}

// ClearLatest drops the published snapshot outside market hours so dashboard
// clients stop rendering a stale session.
func (o *Orchestrator) ClearLatest() {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.state != nil {
		o.state.Latest = nil
	}
}

// SettingsFor loads the user's settings, falling back to defaults when the
// store has no row yet.
func (o *Orchestrator) SettingsFor(ctx context.Context, username string) (*models.Settings, error) {
	s, err := o.settings.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &models.Settings{Username: username}
		if err := defaults.Set(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ResetBaseline clears the in-memory baseline, the price buffers, the
// persisted row and the signal confirmation counters. The next cycle rebuilds
// everything from live data, including the day-open price.
func (o *Orchestrator) ResetBaseline(ctx context.Context) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	o.stateMu.Lock()
	st := o.state
	o.stateMu.Unlock()
	if st == nil {
		return ErrNoSession
	}

	st.Baseline = nil
	st.History.Reset()
	st.OpenPrice = 0
	st.openFromCandle = false
	o.sig.Reset()
	if err := o.baselines.Delete(ctx, st.Username, st.Date); err != nil {
		return err
	}
	o.log.Info("baseline reset", logger.String("user", st.Username), logger.String("date", st.Date))
	return nil
}

// RunCycle executes one full poll-to-publish pass for the active session.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	o.stateMu.RLock()
	st, cred := o.state, o.cred
	o.stateMu.RUnlock()
	if st == nil || cred == nil {
		return ErrNoSession
	}

	start := time.Now()
	err := o.cycle(ctx, st, cred, now)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.RecordCycle(st.Username, outcome, time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) cycle(ctx context.Context, st *SessionState, cred *models.Credential, now time.Time) error {
	if st.RollToDay(now) {
		o.vol.Reset()
		o.sig.Reset()
		o.log.Info("session rolled to new trading day",
			logger.String("user", st.Username),
			logger.String("date", st.Date))
	}

	s, err := o.SettingsFor(ctx, st.Username)
	if err != nil {
		return err
	}

	chain, err := o.feed.FetchChain(ctx, cred.AccessToken, util.WeeklyExpiry(now))
	if err != nil {
		o.metrics.RecordFetchError("chain")
		return err
	}

	o.refreshDailyInputs(ctx, st, cred, s, now)

	st.ObserveOpen(chain.UnderlyingPrice, false)
	st.History.Add(models.PriceSample{Timestamp: now, Price: chain.UnderlyingPrice})

	agg, err := o.aggregator.Aggregate(chain)
	if err != nil {
		return err
	}

	baseline := o.ensureBaseline(ctx, st, agg)

	// Drift stays all-zero until a valid baseline exists; the detector then
	// sees no signatures and keeps its counters at zero. Consumers always get
	// a zero-valued struct, never a null.
	var drift models.AggregatedGreeks
	if baseline != nil {
		drift = agg.Sub(*baseline)
	}

	vm := o.vol.Evaluate(chain, st.History.Session(), st.OpenPrice, st.MarketOpen, now, *s)
	dm := o.dir.Evaluate(st.History.Session(), st.OpenPrice, s.PrevDayClose, s.PrevDayRange, *s)
	results := o.sig.Evaluate(drift, *s)

	o.recordFired(ctx, st, chain, results, now)

	snap := &models.PublishedSnapshot{
		Sequence:        st.NextSequence(),
		PollTimestamp:   now,
		Timestamp:       chain.Timestamp,
		Username:        st.Username,
		UnderlyingPrice: chain.UnderlyingPrice,
		OpenPrice:       st.OpenPrice,
		ATMStrike:       chain.ATMStrike,
		ExpiryDate:      chain.ExpiryDate,
		OptionCount:     len(chain.Options),
		Options:         chain.Options,
		Aggregated:      agg,
		Baseline:        baseline,
		Volatility:      vm,
		Direction:       dm,
		Signals:         results,
	}
	d := drift
	snap.Drift = &d

	// The session owns the snapshot before anyone else sees it: a reader
	// hitting Latest() mid-broadcast gets this cycle, not the previous one.
	o.stateMu.Lock()
	st.Latest = snap
	st.LastSuccessAt = now
	o.stateMu.Unlock()

	o.broadcast.Broadcast(snap)
	o.sink.Enqueue(snap)

	o.metrics.RecordUnderlyingPrice(st.Username, chain.UnderlyingPrice)
	o.metrics.RecordVolatilityState(st.Username, string(vm.State))
	o.metrics.RecordSubscribers(o.broadcast.Subscribers())
	return nil
}

// refreshDailyInputs fetches the previous-day OHLC and the authoritative
// day-open candle when they are missing. Failures degrade gracefully: the
// engines run with poll-derived fallbacks until the feed recovers.
func (o *Orchestrator) refreshDailyInputs(ctx context.Context, st *SessionState, cred *models.Credential, s *models.Settings, now time.Time) {
	if s.PrevDayDate != st.Date {
		ohlc, err := o.feed.FetchPrevDayOHLC(ctx, cred.AccessToken, now)
		if err != nil {
			o.metrics.RecordFetchError("prev_day_ohlc")
			o.log.Warn("previous-day OHLC unavailable", logger.Error(err), logger.String("user", st.Username))
		} else if ohlc != nil {
			s.PrevDayClose = ohlc.Close
			s.PrevDayRange = ohlc.High - ohlc.Low
			s.PrevDayDate = st.Date
			if err := o.settings.Put(ctx, s); err != nil {
				o.log.Warn("persist previous-day stats", logger.Error(err))
			}
		}
	}

	if !st.OpenAuthoritative() {
		candle, err := o.feed.FetchOpenCandle(ctx, cred.AccessToken, now)
		if err != nil {
			o.metrics.RecordFetchError("open_candle")
		} else if candle != nil {
			st.ObserveOpen(candle.Open, true)
		}
	}
}

// ensureBaseline returns the day's baseline, loading or capturing it as
// needed. An aggregation with a zero call delta never becomes the baseline;
// the next cycle tries again.
func (o *Orchestrator) ensureBaseline(ctx context.Context, st *SessionState, agg *models.AggregatedGreeks) *models.AggregatedGreeks {
	if st.Baseline != nil {
		return st.Baseline
	}

	stored, err := o.baselines.Get(ctx, st.Username, st.Date)
	if err != nil {
		o.log.Warn("baseline load failed", logger.Error(err), logger.String("user", st.Username))
	} else if stored.Valid() {
		g := stored.Greeks
		st.Baseline = &g
		return st.Baseline
	}

	if agg.Call.Delta == 0 {
		return nil
	}

	g := *agg
	st.Baseline = &g
	snap := &models.BaselineSnapshot{Username: st.Username, Date: st.Date, Greeks: g}
	if err := o.baselines.Put(ctx, snap); err != nil {
		o.log.Warn("baseline persist failed", logger.Error(err), logger.String("user", st.Username))
	}
	o.log.Info("baseline captured",
		logger.String("user", st.Username),
		logger.String("date", st.Date),
		logger.Float64("call_delta", g.Call.Delta))
	return st.Baseline
}

func (o *Orchestrator) recordFired(ctx context.Context, st *SessionState, chain *models.Chain, results []models.SignalResult, now time.Time) {
	for _, r := range results {
		if !r.Fired {
			continue
		}

		ev := &models.SignalEvent{
			Timestamp: now,
			Username:  st.Username,
			Position:  r.Position,
			Delta:     r.Delta.Value,
			Vega:      r.Vega.Value,
			Theta:     r.Theta.Value,
			Gamma:     r.Gamma.Value,
		}
		if atm := chain.ATMOption(r.Position.OptionType()); atm != nil {
			ev.StrikePrice = atm.Strike
			ev.StrikeLTP = atm.LTP
		}

		if err := o.signalLog.Append(ctx, ev); err != nil {
			o.log.Error("signal log append failed", logger.Error(err), logger.String("position", string(r.Position)))
		}
		o.metrics.RecordSignalFired(st.Username, string(r.Position))
		o.log.Info("signal fired",
			logger.String("user", st.Username),
			logger.String("position", string(r.Position)),
			logger.Int("confirmations", r.ConfirmationCount))
	}
}
