package models

// GreekSide holds the summed Greeks for one side (call or put) of the
// ATM+10-OTM aggregation window.
type GreekSide struct {
	Delta       float64 `json:"delta"`
	Vega        float64 `json:"vega"`
	Theta       float64 `json:"theta"`
	Gamma       float64 `json:"gamma"`
	OptionCount int     `json:"option_count"`
}

// AggregatedGreeks is the per-cycle sum of Greeks over the ATM strike plus
// the ten adjacent OTM strikes on each side. Values are replaced wholesale
// every cycle, never mutated in place.
type AggregatedGreeks struct {
	Call GreekSide `json:"call"`
	Put  GreekSide `json:"put"`
}

// Sub returns the per-Greek difference a − b, side by side. Option counts
// carry a's counts; they describe the current window, not the drift.
func (a AggregatedGreeks) Sub(b AggregatedGreeks) AggregatedGreeks {
	return AggregatedGreeks{
		Call: GreekSide{
			Delta:       a.Call.Delta - b.Call.Delta,
			Vega:        a.Call.Vega - b.Call.Vega,
			Theta:       a.Call.Theta - b.Call.Theta,
			Gamma:       a.Call.Gamma - b.Call.Gamma,
			OptionCount: a.Call.OptionCount,
		},
		Put: GreekSide{
			Delta:       a.Put.Delta - b.Put.Delta,
			Vega:        a.Put.Vega - b.Put.Vega,
			Theta:       a.Put.Theta - b.Put.Theta,
			Gamma:       a.Put.Gamma - b.Put.Gamma,
			OptionCount: a.Put.OptionCount,
		},
	}
}

// Side selects the call or put side for the given option type.
func (a AggregatedGreeks) Side(typ OptionType) GreekSide {
	if typ == OptionPut {
		return a.Put
	}
	return a.Call
}

// BaselineSnapshot is the day's first valid aggregation, persisted per
// (user, IST date). A zero call-side delta marks the row invalid and forces
// recapture on the next cycle.
type BaselineSnapshot struct {
	Username string           `json:"username"`
	Date     string           `json:"date"`
	Greeks   AggregatedGreeks `json:"greeks"`
}

// Valid reports whether the snapshot can serve as the day's baseline.
func (b *BaselineSnapshot) Valid() bool {
	return b != nil && b.Greeks.Call.Delta != 0
}
