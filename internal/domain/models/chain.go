package models

import "time"

// OptionType distinguishes calls from puts using the exchange convention.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Option is one leg of the normalized option chain. Greeks are consumed from
// the feed, never computed here.
type Option struct {
	Strike float64    `json:"strike"`
	Type   OptionType `json:"type"`
	Delta  float64    `json:"delta"`
	Vega   float64    `json:"vega"`
	Theta  float64    `json:"theta"`
	Gamma  float64    `json:"gamma"`
	OI     float64    `json:"oi"`
	LTP    float64    `json:"ltp"`
	Volume float64    `json:"volume"`
	IV     float64    `json:"iv"`
}

// Chain is the canonical, validated view of one option-chain poll. It is the
// only shape downstream stages ever see; the raw feed payload stops at the
// normalize stage.
type Chain struct {
	Timestamp       time.Time `json:"timestamp"`
	UnderlyingPrice float64   `json:"underlying_price"`
	ATMStrike       float64   `json:"atm_strike"`
	ExpiryDate      string    `json:"expiry_date"`
	Options         []Option  `json:"options"`
}

// ATMOption returns the ATM option of the given type, or nil.
func (c *Chain) ATMOption(typ OptionType) *Option {
	for i := range c.Options {
		if c.Options[i].Type == typ && c.Options[i].Strike == c.ATMStrike {
			return &c.Options[i]
		}
	}
	return nil
}

// Strikes returns the sorted unique strikes present in the chain.
func (c *Chain) Strikes() []float64 {
	seen := make(map[float64]struct{}, len(c.Options))
	out := make([]float64, 0, len(c.Options)/2)
	for _, o := range c.Options {
		if _, ok := seen[o.Strike]; ok {
			continue
		}
		seen[o.Strike] = struct{}{}
		out = append(out, o.Strike)
	}
	sortFloats(out)
	return out
}

func sortFloats(v []float64) {
	// insertion sort; chains carry a few dozen strikes at most
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// PriceSample is one (timestamp, price) observation of the underlying.
type PriceSample struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// OHLC is a daily candle for the underlying, used for previous-day stats and
// the authoritative day-open price.
type OHLC struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}
