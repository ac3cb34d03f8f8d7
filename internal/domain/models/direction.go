package models

// OpeningBias classifies gap acceptance relative to the day open.
type OpeningBias string

const (
	BiasBullish OpeningBias = "BULLISH"
	BiasBearish OpeningBias = "BEARISH"
	BiasNeutral OpeningBias = "NEUTRAL"
)

// DirectionState is the session-level directional classification.
type DirectionState string

const (
	DirectionalBull DirectionState = "DIRECTIONAL_BULL"
	DirectionalBear DirectionState = "DIRECTIONAL_BEAR"
	DirectionalNone DirectionState = "NEUTRAL"
)

// InitialBalance is the high/low range of the first 45 minutes of effective
// session activity (measured from the first sample, not the opening bell).
type InitialBalance struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Range float64 `json:"range"`
}

// DirectionMetrics carries the direction/asymmetry readings of one cycle.
// REA and its components stay nil until at least one sample exists outside
// the IB window; a zero there would read as "perfectly balanced" when the
// data simply does not exist yet.
type DirectionMetrics struct {
	Gap             float64         `json:"gap"`
	GapPct          *float64        `json:"gap_pct"`
	AcceptanceRatio *float64        `json:"acceptance_ratio"`
	OpeningBias     OpeningBias     `json:"opening_bias"`
	IB              *InitialBalance `json:"ib"`
	REUp            *float64        `json:"re_up"`
	REDown          *float64        `json:"re_down"`
	REA             *float64        `json:"rea"`
	DE              *float64        `json:"de"`
	DirectionalState DirectionState `json:"directional_state"`
}
