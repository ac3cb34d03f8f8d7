package analytics

import (
	"math"
	"time"

	"OptionPulse/internal/domain/models"
)

const (
	rvWindow       = 15 * time.Minute
	rvMedianSpan   = 4 // non-overlapping windows behind now
	debounceWindow = 60 * time.Second
	openGuardrail  = 30 * time.Minute
)

// VolEngine is the hysteretic volatility regime state machine. It keeps the
// confirmed state sticky: a different candidate must persist for the full
// debounce window before it is promoted, so one-tick spikes never flip the
// regime.
type VolEngine struct {
	regime      models.VolatilityRegime
	prevRvRatio *float64
}

func NewVolEngine() *VolEngine {
	return &VolEngine{regime: models.NewVolatilityRegime()}
}

// Reset drops all cross-cycle state (day boundary, logout, manual reset).
func (e *VolEngine) Reset() {
	e.regime = models.NewVolatilityRegime()
	e.prevRvRatio = nil
}

// Regime exposes the sticky state for snapshot assembly.
func (e *VolEngine) Regime() models.VolatilityRegime {
	return e.regime
}

func (e *VolEngine) Evaluate(chain *models.Chain, samples []models.PriceSample, openPrice float64, marketOpen time.Time, now time.Time, s models.Settings) *models.VolatilityMetrics {
	m := &models.VolatilityMetrics{State: models.VolUnknown}

	if len(samples) == 0 || openPrice <= 0 || marketOpen.IsZero() {
		return m
	}

	m.RVCurrent = displacement(samples, now.Add(-rvWindow), now)
	m.RVOpenNorm = rvOpenNorm(samples[len(samples)-1].Price, openPrice, marketOpen, now)
	m.RVMedian = rvMedian(samples, marketOpen, now)

	denom := m.RVOpenNorm
	if m.RVMedian != nil && *m.RVMedian > 0 {
		denom = *m.RVMedian
	}
	if denom <= 0 {
		// Cannot normalize yet; leave the sticky regime untouched.
		e.prevRvRatio = nil
		return m
	}

	ratio := m.RVCurrent / denom
	m.RVRatio = &ratio
	if e.prevRvRatio != nil && *e.prevRvRatio != 0 {
		delta := ratio / *e.prevRvRatio - 1
		m.RVRatioDelta = &delta
	}
	e.prevRvRatio = &ratio

	m.IVCluster, m.IVVwap = ivCluster(chain)
	if m.IVCluster == nil || m.IVVwap == nil {
		return m
	}

	candidate := e.candidate(ratio, m.RVRatioDelta, *m.IVCluster, *m.IVVwap, marketOpen, now, s)
	e.step(candidate, now)

	m.State = e.regime.Confirmed
	m.PendingState = e.regime.Pending
	m.PendingStateSince = e.regime.PendingSince
	return m
}

// candidate picks the raw (pre-debounce) state for this cycle.
func (e *VolEngine) candidate(ratio float64, ratioDelta *float64, ivc, ivv float64, marketOpen, now time.Time, s models.Settings) models.VolatilityState {
	c := s.VolContractionRatio
	x := s.VolExpansionRatio

	switch {
	case ratio < c && ivc < 0.9*ivv:
		return models.VolContraction
	case ratio > c+0.2 && ratioDelta != nil && *ratioDelta >= s.VolAccelThreshold && ivc < 0.9*ivv:
		// Opening auction guardrail: no transition entries in the first
		// 30 minutes of the session.
		if now.Sub(marketOpen) < openGuardrail {
			return models.VolContraction
		}
		return models.VolTransition
	case ratio > x+0.2 && ivc > 1.1*ivv:
		return models.VolExpansion
	default:
		// Grey zone: retain whatever is confirmed.
		return e.regime.Confirmed
	}
}

// step applies the debounce rule to a candidate.
func (e *VolEngine) step(candidate models.VolatilityState, now time.Time) {
	if candidate == e.regime.Confirmed {
		e.regime.Pending = nil
		e.regime.PendingSince = nil
		return
	}

	if e.regime.Pending != nil && *e.regime.Pending == candidate {
		if now.Sub(*e.regime.PendingSince) >= debounceWindow {
			e.regime.Confirmed = candidate
			e.regime.Pending = nil
			e.regime.PendingSince = nil
		}
		return
	}

	p := candidate
	t := now
	e.regime.Pending = &p
	e.regime.PendingSince = &t
}

// displacement sums absolute tick-to-tick deltas for samples in (from, to].
func displacement(samples []models.PriceSample, from, to time.Time) float64 {
	var sum float64
	var prev *models.PriceSample
	for i := range samples {
		sm := &samples[i]
		if sm.Timestamp.Before(from) || sm.Timestamp.After(to) {
			continue
		}
		if prev != nil {
			sum += math.Abs(sm.Price - prev.Price)
		}
		prev = sm
	}
	return sum
}

// rvOpenNorm normalizes displacement from the open by elapsed 15-minute
// windows (floor 1).
func rvOpenNorm(price, openPrice float64, marketOpen, now time.Time) float64 {
	windows := int(now.Sub(marketOpen) / rvWindow)
	if windows < 1 {
		windows = 1
	}
	return math.Abs(price-openPrice) / float64(windows)
}

// rvMedian computes the median displacement over the last four
// non-overlapping 15-minute windows ending at now. A window only qualifies
// if it starts after the market open and contains at least two samples;
// fewer than two qualifying windows means no robust baseline yet.
func rvMedian(samples []models.PriceSample, marketOpen, now time.Time) *float64 {
	vals := make([]float64, 0, rvMedianSpan)
	for i := 0; i < rvMedianSpan; i++ {
		to := now.Add(-time.Duration(i) * rvWindow)
		from := to.Add(-rvWindow)
		if from.Before(marketOpen) {
			continue
		}
		if countIn(samples, from, to) < 2 {
			continue
		}
		vals = append(vals, displacement(samples, from, to))
	}
	if len(vals) < 2 {
		return nil
	}
	sortFloats(vals)
	var med float64
	n := len(vals)
	if n%2 == 1 {
		med = vals[n/2]
	} else {
		med = (vals[n/2-1] + vals[n/2]) / 2
	}
	return &med
}

func countIn(samples []models.PriceSample, from, to time.Time) int {
	n := 0
	for i := range samples {
		if !samples[i].Timestamp.Before(from) && !samples[i].Timestamp.After(to) {
			n++
		}
	}
	return n
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// ivCluster computes the simple and volume-weighted mean IV over exactly six
// options: CE and PE at the ATM strike and the strikes immediately above and
// below it. Anything short of the full cluster returns nil.
func ivCluster(chain *models.Chain) (*float64, *float64) {
	if chain == nil {
		return nil, nil
	}
	strikes := chain.Strikes()
	atmIdx := -1
	for i, s := range strikes {
		if s == chain.ATMStrike {
			atmIdx = i
			break
		}
	}
	if atmIdx <= 0 || atmIdx >= len(strikes)-1 {
		return nil, nil
	}

	want := map[float64]struct{}{
		strikes[atmIdx-1]: {},
		strikes[atmIdx]:   {},
		strikes[atmIdx+1]: {},
	}

	var ivSum, wSum, volSum float64
	n := 0
	for _, o := range chain.Options {
		if _, ok := want[o.Strike]; !ok {
			continue
		}
		ivSum += o.IV
		wSum += o.IV * o.Volume
		volSum += o.Volume
		n++
	}
	if n != 6 {
		return nil, nil
	}

	mean := ivSum / float64(n)
	var vwap float64
	if volSum > 0 {
		vwap = wSum / volSum
	} else {
		vwap = mean
	}
	return &mean, &vwap
}
