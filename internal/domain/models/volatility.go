package models

import "time"

// VolatilityState is the regime emitted by the volatility state machine.
type VolatilityState string

const (
	VolUnknown     VolatilityState = "UNKNOWN"
	VolContraction VolatilityState = "CONTRACTION"
	VolTransition  VolatilityState = "TRANSITION"
	VolExpansion   VolatilityState = "EXPANSION"
)

// VolatilityMetrics carries the realized/implied volatility readings of one
// cycle together with the debounced state machine output. Pointer fields are
// nil when the input data does not yet exist; consumers must not conflate
// "unavailable" with zero.
type VolatilityMetrics struct {
	RVCurrent         float64          `json:"rv_current"`
	RVOpenNorm        float64          `json:"rv_open_norm"`
	RVMedian          *float64         `json:"rv_median"`
	RVRatio           *float64         `json:"rv_ratio"`
	RVRatioDelta      *float64         `json:"rv_ratio_delta"`
	IVCluster         *float64         `json:"iv_cluster"`
	IVVwap            *float64         `json:"iv_vwap"`
	State             VolatilityState  `json:"state"`
	PendingState      *VolatilityState `json:"pending_state,omitempty"`
	PendingStateSince *time.Time       `json:"pending_state_since,omitempty"`
}

// VolatilityRegime is the sticky part of the state machine that survives
// between cycles: the confirmed state plus any pending candidate awaiting
// its debounce interval.
type VolatilityRegime struct {
	Confirmed    VolatilityState
	Pending      *VolatilityState
	PendingSince *time.Time
}

// NewVolatilityRegime returns a regime with no confirmed state yet.
func NewVolatilityRegime() VolatilityRegime {
	return VolatilityRegime{Confirmed: VolUnknown}
}
