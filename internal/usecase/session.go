package usecase

import (
	"time"

	"OptionPulse/internal/domain/models"
	"OptionPulse/pkg/util"
)

const (
	// rollingWindow bounds the short price buffer used for N-minutes-ago
	// lookups; the full session buffer feeds the analytics engines.
	rollingWindow = 15 * time.Minute

	// priceLookupTolerance is how far a stored sample may sit from the
	// requested instant before the lookup reports "no data".
	priceLookupTolerance = 2 * time.Minute
)

// PriceHistory keeps two views of the underlying price: a rolling 15-minute
// buffer for point lookups and the full session series for the volatility and
// direction engines. Both reset at the IST day boundary.
type PriceHistory struct {
	rolling []models.PriceSample
	session []models.PriceSample
}

func NewPriceHistory() *PriceHistory {
	return &PriceHistory{}
}

// Add appends a sample and trims the rolling buffer to the last 15 minutes.
// Samples are assumed to arrive in timestamp order; the poller guarantees it.
func (h *PriceHistory) Add(sm models.PriceSample) {
	h.session = append(h.session, sm)
	h.rolling = append(h.rolling, sm)

	cut := sm.Timestamp.Add(-rollingWindow)
	i := 0
	for i < len(h.rolling) && h.rolling[i].Timestamp.Before(cut) {
		i++
	}
	if i > 0 {
		h.rolling = append(h.rolling[:0], h.rolling[i:]...)
	}
}

// Session returns the full-session sample series.
func (h *PriceHistory) Session() []models.PriceSample {
	return h.session
}

func (h *PriceHistory) Len() int {
	return len(h.session)
}

// Reset drops both buffers. Called at the day boundary and on user switch.
func (h *PriceHistory) Reset() {
	h.rolling = nil
	h.session = nil
}

// PriceMinutesAgo returns the price closest to now-n minutes, or nil when no
// sample lands within the two-minute tolerance. The caller gets nil, never a
// stale out-of-window price.
func (h *PriceHistory) PriceMinutesAgo(n int, now time.Time) *float64 {
	target := now.Add(-time.Duration(n) * time.Minute)

	var best *models.PriceSample
	var bestGap time.Duration
	for i := range h.rolling {
		gap := h.rolling[i].Timestamp.Sub(target)
		if gap < 0 {
			gap = -gap
		}
		if gap > priceLookupTolerance {
			continue
		}
		if best == nil || gap < bestGap {
			best = &h.rolling[i]
			bestGap = gap
		}
	}
	if best == nil {
		return nil
	}
	p := best.Price
	return &p
}

// SessionState is the per-user intraday state the orchestrator mutates under
// the pipeline lock. Everything here is scoped to one IST trading day; the
// day roll wipes it wholesale.
type SessionState struct {
	Username   string
	Date       string // IST calendar date the state belongs to
	MarketOpen time.Time

	// OpenPrice is the day-open of the underlying. Preferred source is the
	// exchange's daily candle; until that arrives the first polled price
	// stands in. openFromCandle marks the authoritative value so a later
	// candle fetch stops overwriting it.
	OpenPrice      float64
	openFromCandle bool

	Baseline *models.AggregatedGreeks
	History  *PriceHistory

	Sequence      uint64
	LastSuccessAt time.Time
	Latest        *models.PublishedSnapshot
}

func NewSessionState(username string, now time.Time) *SessionState {
	return &SessionState{
		Username:   username,
		Date:       util.ISTDate(now),
		MarketOpen: util.MarketOpenAt(now),
		History:    NewPriceHistory(),
	}
}

// RollToDay resets the state when now falls on a different IST date than the
// one the state was built for. Returns true when a reset happened so the
// caller can also reset the engines it owns.
func (s *SessionState) RollToDay(now time.Time) bool {
	date := util.ISTDate(now)
	if date == s.Date {
		return false
	}
	s.Date = date
	s.MarketOpen = util.MarketOpenAt(now)
	s.OpenPrice = 0
	s.openFromCandle = false
	s.Baseline = nil
	s.History.Reset()
	s.Sequence = 0
	s.LastSuccessAt = time.Time{}
	s.Latest = nil
	return true
}

// ObserveOpen records a candidate day-open price. A candle-sourced value is
// authoritative and wins over any poll-sourced fallback; a poll-sourced value
// only fills the gap while no candle has been seen.
func (s *SessionState) ObserveOpen(price float64, fromCandle bool) {
	if price <= 0 {
		return
	}
	if fromCandle {
		s.OpenPrice = price
		s.openFromCandle = true
		return
	}
	if s.OpenPrice == 0 {
		s.OpenPrice = price
	}
}

// OpenAuthoritative reports whether OpenPrice came from the daily candle.
func (s *SessionState) OpenAuthoritative() bool {
	return s.openFromCandle
}

// NextSequence increments and returns the per-session snapshot counter.
func (s *SessionState) NextSequence() uint64 {
	s.Sequence++
	return s.Sequence
}
