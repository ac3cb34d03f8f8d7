package analytics

import (
	"fmt"
	"math"

	"OptionPulse/internal/domain/models"
)

// otmDepth is how many strikes beyond ATM count toward each side's window.
const otmDepth = 10

// Aggregator sums per-option Greeks over the ATM strike plus the ten
// adjacent out-of-the-money strikes on each side. Calls take ATM and higher
// strikes, puts take ATM and lower strikes.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// ATMStrike returns the strike nearest to the underlying price. Ties go to
// the lower strike.
func ATMStrike(strikes []float64, underlying float64) float64 {
	if len(strikes) == 0 {
		return 0
	}
	best := strikes[0]
	bestDist := math.Abs(strikes[0] - underlying)
	for _, s := range strikes[1:] {
		d := math.Abs(s - underlying)
		if d < bestDist || (d == bestDist && s < best) {
			best = s
			bestDist = d
		}
	}
	return best
}

func (a *Aggregator) Aggregate(chain *models.Chain) (*models.AggregatedGreeks, error) {
	if chain == nil || len(chain.Options) == 0 {
		return nil, fmt.Errorf("aggregate: empty chain")
	}

	strikes := chain.Strikes()
	atm := chain.ATMStrike
	if atm == 0 {
		atm = ATMStrike(strikes, chain.UnderlyingPrice)
	}

	atmIdx := -1
	for i, s := range strikes {
		if s == atm {
			atmIdx = i
			break
		}
	}
	if atmIdx < 0 {
		return nil, fmt.Errorf("aggregate: atm strike %.2f not in chain", atm)
	}

	callMax := strikes[min(atmIdx+otmDepth, len(strikes)-1)]
	putMin := strikes[max(atmIdx-otmDepth, 0)]

	out := &models.AggregatedGreeks{}
	for _, o := range chain.Options {
		switch o.Type {
		case models.OptionCall:
			if o.Strike >= atm && o.Strike <= callMax {
				out.Call.Delta += o.Delta
				out.Call.Vega += o.Vega
				out.Call.Theta += o.Theta
				out.Call.Gamma += o.Gamma
				out.Call.OptionCount++
			}
		case models.OptionPut:
			if o.Strike <= atm && o.Strike >= putMin {
				out.Put.Delta += o.Delta
				out.Put.Vega += o.Vega
				out.Put.Theta += o.Theta
				out.Put.Gamma += o.Gamma
				out.Put.OptionCount++
			}
		}
	}
	return out, nil
}
