package models

import "time"

// Position is one of the four canonical option positions whose Greek-drift
// signatures the detector matches against.
type Position string

const (
	LongCall  Position = "Long Call"
	LongPut   Position = "Long Put"
	ShortCall Position = "Short Call"
	ShortPut  Position = "Short Put"
)

// Positions lists the detectable positions in evaluation order.
var Positions = []Position{LongCall, LongPut, ShortCall, ShortPut}

// OptionTypeFor returns the chain side a position is evaluated against.
func (p Position) OptionType() OptionType {
	if p == LongPut || p == ShortPut {
		return OptionPut
	}
	return OptionCall
}

// GreekCheck is the per-Greek outcome of a signature comparison.
type GreekCheck struct {
	Value          float64 `json:"value"`
	SignMatch      bool    `json:"sign_match"`
	ThresholdMatch bool    `json:"threshold_match"`
	Match          bool    `json:"match"`
}

// SignalResult is the evaluation of one position for one cycle, including
// the consecutive-confirmation count after this cycle's update.
type SignalResult struct {
	Position          Position   `json:"position"`
	Delta             GreekCheck `json:"delta"`
	Vega              GreekCheck `json:"vega"`
	Theta             GreekCheck `json:"theta"`
	Gamma             GreekCheck `json:"gamma"`
	AllMatched        bool       `json:"all_matched"`
	ConfirmationCount int        `json:"confirmation_count"`
	Fired             bool       `json:"fired"`
}

// SignalEvent is the record appended to the trade/signal log when a position
// fires after the required consecutive confirmations.
type SignalEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Username    string    `json:"username"`
	Position    Position  `json:"detected_position"`
	StrikePrice float64   `json:"strike_price"`
	StrikeLTP   float64   `json:"strike_ltp"`
	Delta       float64   `json:"delta"`
	Vega        float64   `json:"vega"`
	Theta       float64   `json:"theta"`
	Gamma       float64   `json:"gamma"`
}
