package service

import (
	"time"

	"OptionPulse/internal/domain/models"
)

// GreekAggregator reduces a normalized chain to the ATM+10-OTM Greek window.
type GreekAggregator interface {
	Aggregate(chain *models.Chain) (*models.AggregatedGreeks, error)
}

// VolatilityEngine classifies the realized/implied volatility regime from
// the session price history and the current chain. Implementations are
// stateful across cycles (debounce, previous ratio) and single-writer: only
// the orchestrator calls them, under the pipeline lock.
type VolatilityEngine interface {
	Evaluate(chain *models.Chain, samples []models.PriceSample, openPrice float64, marketOpen time.Time, now time.Time, s models.Settings) *models.VolatilityMetrics
	Reset()
}

// DirectionEngine classifies gap acceptance, range extension asymmetry and
// directional efficiency for the session.
type DirectionEngine interface {
	Evaluate(samples []models.PriceSample, openPrice, prevClose, prevRange float64, s models.Settings) *models.DirectionMetrics
}

// SignalDetector matches Greek drift against the four position signatures
// and tracks consecutive confirmations per position.
type SignalDetector interface {
	Evaluate(drift models.AggregatedGreeks, s models.Settings) []models.SignalResult
	Reset()
}
