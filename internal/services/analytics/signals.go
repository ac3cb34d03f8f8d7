package analytics

import (
	"math"

	"OptionPulse/internal/domain/models"
)

// signature is the required drift sign per Greek: +1 or -1.
type signature struct {
	delta, vega, theta, gamma int
}

var signatures = map[models.Position]signature{
	models.LongCall:  {+1, +1, -1, +1},
	models.LongPut:   {-1, +1, -1, +1},
	models.ShortCall: {-1, -1, +1, -1},
	models.ShortPut:  {+1, -1, +1, -1},
}

// SignalEngine matches Greek drift against the four canonical position
// signatures. It carries the per-position consecutive-confirmation counters
// between cycles; only the orchestrator touches it, under the pipeline lock.
type SignalEngine struct {
	counts map[models.Position]int
}

func NewSignalEngine() *SignalEngine {
	return &SignalEngine{counts: make(map[models.Position]int)}
}

// Reset clears all confirmation counters (day boundary, logout, user switch).
func (e *SignalEngine) Reset() {
	e.counts = make(map[models.Position]int)
}

func (e *SignalEngine) Evaluate(drift models.AggregatedGreeks, s models.Settings) []models.SignalResult {
	need := s.ConsecutiveConfirmations
	if need < 1 {
		need = 1
	}

	results := make([]models.SignalResult, 0, len(models.Positions))
	for _, pos := range models.Positions {
		sig := signatures[pos]
		side := drift.Side(pos.OptionType())

		r := models.SignalResult{
			Position: pos,
			Delta:    check(side.Delta, sig.delta, s.DeltaThreshold),
			Vega:     check(side.Vega, sig.vega, s.VegaThreshold),
			Theta:    check(side.Theta, sig.theta, s.ThetaThreshold),
			Gamma:    check(side.Gamma, sig.gamma, s.GammaThreshold),
		}
		r.AllMatched = r.Delta.Match && r.Vega.Match && r.Theta.Match && r.Gamma.Match

		if r.AllMatched {
			e.counts[pos]++
			r.ConfirmationCount = e.counts[pos]
			if e.counts[pos] >= need {
				r.Fired = true
				e.counts[pos] = 0
			}
		} else {
			e.counts[pos] = 0
			r.ConfirmationCount = 0
		}

		results = append(results, r)
	}
	return results
}

func check(value float64, sign int, threshold float64) models.GreekCheck {
	c := models.GreekCheck{Value: value}
	if sign > 0 {
		c.SignMatch = value > 0
	} else {
		c.SignMatch = value < 0
	}
	c.ThresholdMatch = math.Abs(value) >= threshold
	c.Match = c.SignMatch && c.ThresholdMatch
	return c
}
