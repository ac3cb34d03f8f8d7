package analytics

import (
	"testing"

	"OptionPulse/internal/domain/models"
)

func chainWith(underlying float64, opts ...models.Option) *models.Chain {
	c := &models.Chain{
		UnderlyingPrice: underlying,
		Options:         opts,
	}
	c.ATMStrike = ATMStrike(c.Strikes(), underlying)
	return c
}

func TestATMStrikeNearestTieLowest(t *testing.T) {
	strikes := []float64{100, 150, 200}
	if got := ATMStrike(strikes, 160); got != 150 {
		t.Fatalf("expected 150, got %v", got)
	}
	// 175 is equidistant between 150 and 200; ties go to the lower strike
	if got := ATMStrike(strikes, 175); got != 150 {
		t.Fatalf("tie should pick lower strike, got %v", got)
	}
}

func TestAggregateSingleStrike(t *testing.T) {
	c := chainWith(100,
		models.Option{Strike: 100, Type: models.OptionCall, Delta: 0.5, Vega: 0.1, Theta: -0.02, Gamma: 0.01},
		models.Option{Strike: 100, Type: models.OptionPut, Delta: -0.5, Vega: 0.1, Theta: -0.02, Gamma: 0.01},
	)

	agg, err := NewAggregator().Aggregate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ATMStrike != 100 {
		t.Fatalf("atm strike = %v, want 100", c.ATMStrike)
	}
	if agg.Call.Delta != 0.5 {
		t.Errorf("call delta = %v, want 0.5", agg.Call.Delta)
	}
	if agg.Put.Delta != -0.5 {
		t.Errorf("put delta = %v, want -0.5", agg.Put.Delta)
	}
	if agg.Call.OptionCount != 1 || agg.Put.OptionCount != 1 {
		t.Errorf("option counts = %d/%d, want 1/1", agg.Call.OptionCount, agg.Put.OptionCount)
	}
}

func TestAggregateWindowBounds(t *testing.T) {
	// 25 strikes at 50-point spacing, ATM in the middle. The window must
	// never include strikes beyond ATM+10 for calls or ATM-10 for puts.
	var opts []models.Option
	for i := 0; i < 25; i++ {
		strike := 100.0 + float64(i)*50
		opts = append(opts,
			models.Option{Strike: strike, Type: models.OptionCall, Delta: 1},
			models.Option{Strike: strike, Type: models.OptionPut, Delta: -1},
		)
	}
	c := chainWith(700, opts...) // ATM = 700, index 12

	agg, err := NewAggregator().Aggregate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// ATM plus 10 OTM on each side = 11 options per side
	if agg.Call.OptionCount != 11 {
		t.Errorf("call count = %d, want 11", agg.Call.OptionCount)
	}
	if agg.Put.OptionCount != 11 {
		t.Errorf("put count = %d, want 11", agg.Put.OptionCount)
	}
	if agg.Call.Delta != 11 {
		t.Errorf("call delta sum = %v, want 11", agg.Call.Delta)
	}
}

func TestAggregateWindowClampedAtEdge(t *testing.T) {
	// ATM at the highest strike: call side has only the ATM itself.
	c := chainWith(300,
		models.Option{Strike: 100, Type: models.OptionCall, Delta: 1},
		models.Option{Strike: 200, Type: models.OptionCall, Delta: 1},
		models.Option{Strike: 300, Type: models.OptionCall, Delta: 1},
		models.Option{Strike: 100, Type: models.OptionPut, Delta: -1},
		models.Option{Strike: 200, Type: models.OptionPut, Delta: -1},
		models.Option{Strike: 300, Type: models.OptionPut, Delta: -1},
	)

	agg, err := NewAggregator().Aggregate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Call.OptionCount != 1 {
		t.Errorf("call count = %d, want 1", agg.Call.OptionCount)
	}
	if agg.Put.OptionCount != 3 {
		t.Errorf("put count = %d, want 3", agg.Put.OptionCount)
	}
}

func TestAggregateEmptyChain(t *testing.T) {
	if _, err := NewAggregator().Aggregate(&models.Chain{}); err == nil {
		t.Fatal("expected error for empty chain")
	}
}

func TestDriftIdempotence(t *testing.T) {
	g := models.AggregatedGreeks{
		Call: models.GreekSide{Delta: 0.5, Vega: 0.1, Theta: -0.02, Gamma: 0.01, OptionCount: 11},
		Put:  models.GreekSide{Delta: -0.4, Vega: 0.2, Theta: -0.03, Gamma: 0.02, OptionCount: 11},
	}
	d := g.Sub(g)
	if d.Call.Delta != 0 || d.Call.Vega != 0 || d.Call.Theta != 0 || d.Call.Gamma != 0 {
		t.Errorf("call drift not zero: %+v", d.Call)
	}
	if d.Put.Delta != 0 || d.Put.Vega != 0 || d.Put.Theta != 0 || d.Put.Gamma != 0 {
		t.Errorf("put drift not zero: %+v", d.Put)
	}
}
