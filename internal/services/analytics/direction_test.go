package analytics

import (
	"math"
	"testing"
	"time"

	"OptionPulse/internal/domain/models"
)

var dirDefaults = models.Settings{
	DirAcceptanceThreshold: 0.65,
	DirNeutralAcceptance:   0.5,
	DirREABull:             0.3,
	DirREABear:             -0.3,
	DirREANeutralBand:      0.3,
	DirDEDirectional:       0.5,
	DirDENeutral:           0.3,
}

func sampleSeries(start time.Time, step time.Duration, prices ...float64) []models.PriceSample {
	out := make([]models.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = models.PriceSample{Timestamp: start.Add(time.Duration(i) * step), Price: p}
	}
	return out
}

func TestREANilInsideInitialBalance(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)

	// 40 minutes of samples, all inside the 45-minute IB window.
	samples := sampleSeries(start, 5*time.Minute, 100, 102, 101, 103, 102, 104, 103, 105, 104)

	m := NewDirEngine().Evaluate(samples, 100, 0, 0, dirDefaults)
	if m.IB == nil {
		t.Fatal("IB should exist once samples exist")
	}
	if m.REA != nil {
		t.Fatalf("REA must stay nil inside the IB window, got %v", *m.REA)
	}
	if m.REUp != nil || m.REDown != nil {
		t.Fatal("range extension legs must stay nil inside the IB window")
	}
}

func TestREAAfterRangeExtension(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)

	// IB forms over 45 minutes [100,104], then price extends to 110.
	samples := sampleSeries(start, 15*time.Minute, 100, 104, 102, 101) // 0,15,30,45min, all inside the IB
	samples = append(samples,
		models.PriceSample{Timestamp: start.Add(60 * time.Minute), Price: 108},
		models.PriceSample{Timestamp: start.Add(75 * time.Minute), Price: 110},
	)

	m := NewDirEngine().Evaluate(samples, 100, 0, 0, dirDefaults)
	if m.REA == nil {
		t.Fatal("REA should be available once a sample falls outside the IB")
	}
	// ibRange=4, reUp = 110-104 = 6, reDown = 0, rea = 1.5
	if *m.REUp != 6 || *m.REDown != 0 {
		t.Fatalf("reUp/reDown = %v/%v, want 6/0", *m.REUp, *m.REDown)
	}
	if math.Abs(*m.REA-1.5) > 1e-9 {
		t.Fatalf("rea = %v, want 1.5", *m.REA)
	}
}

func TestGapZeroWhenNoPreviousClose(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)
	samples := sampleSeries(start, time.Minute, 100, 101)

	m := NewDirEngine().Evaluate(samples, 100, 0, 0, dirDefaults)
	if m.Gap != 0 {
		t.Fatalf("gap = %v, want 0 without previous close", m.Gap)
	}
	if m.AcceptanceRatio != nil {
		t.Fatal("acceptance ratio undefined without a gap")
	}
	if m.OpeningBias != models.BiasNeutral {
		t.Fatalf("bias = %v, want NEUTRAL", m.OpeningBias)
	}
}

func TestBullishGapAcceptance(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)

	// Gap up 5 over prev close 95; all candles after the 30-minute
	// acceptance delay close above the open.
	var samples []models.PriceSample
	for i := 0; i <= 90; i += 5 {
		price := 101.0 + float64(i)*0.05
		samples = append(samples, models.PriceSample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Price:     price,
		})
	}

	m := NewDirEngine().Evaluate(samples, 100, 95, 10, dirDefaults)
	if m.Gap != 5 {
		t.Fatalf("gap = %v, want 5", m.Gap)
	}
	if m.GapPct == nil || math.Abs(*m.GapPct-0.5) > 1e-9 {
		t.Fatalf("gapPct = %v, want 0.5", m.GapPct)
	}
	if m.AcceptanceRatio == nil || *m.AcceptanceRatio != 1 {
		t.Fatalf("acceptance = %v, want 1", m.AcceptanceRatio)
	}
	if m.OpeningBias != models.BiasBullish {
		t.Fatalf("bias = %v, want BULLISH", m.OpeningBias)
	}
}

func TestAcceptanceIgnoresEarlyCandles(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)

	// All samples within the first 30 minutes: no candle qualifies.
	samples := sampleSeries(start, 5*time.Minute, 101, 102, 103, 104, 105)

	m := NewDirEngine().Evaluate(samples, 100, 95, 10, dirDefaults)
	if m.AcceptanceRatio != nil {
		t.Fatalf("acceptance = %v, want nil before the delay elapses", *m.AcceptanceRatio)
	}
	if m.OpeningBias != models.BiasNeutral {
		t.Fatalf("bias = %v, want NEUTRAL", m.OpeningBias)
	}
}

func TestDeltaEfficiencyTrendVersusChop(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)

	// Monotone trend: DE = 1.
	trend := sampleSeries(start, time.Minute, 100, 101, 102, 103, 104)
	m := NewDirEngine().Evaluate(trend, 100, 0, 0, dirDefaults)
	if m.DE == nil || math.Abs(*m.DE-1) > 1e-9 {
		t.Fatalf("trend DE = %v, want 1", m.DE)
	}

	// Pure chop back to the open: DE = 0.
	chop := sampleSeries(start, time.Minute, 100, 102, 100, 102, 100)
	m = NewDirEngine().Evaluate(chop, 100, 0, 0, dirDefaults)
	if m.DE == nil || *m.DE != 0 {
		t.Fatalf("chop DE = %v, want 0", m.DE)
	}
}

func TestDirectionalBullClassification(t *testing.T) {
	start := time.Date(2026, 8, 24, 3, 47, 0, 0, time.UTC)

	// Gap up, accepted, strong upward extension, efficient trend.
	var samples []models.PriceSample
	for i := 0; i <= 120; i += 5 {
		price := 100.0 + float64(i)*0.1 // steady climb to 112
		samples = append(samples, models.PriceSample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Price:     price,
		})
	}

	m := NewDirEngine().Evaluate(samples, 100, 97, 10, dirDefaults)
	if m.OpeningBias != models.BiasBullish {
		t.Fatalf("bias = %v, want BULLISH", m.OpeningBias)
	}
	if m.DirectionalState != models.DirectionalBull {
		t.Fatalf("state = %v, want DIRECTIONAL_BULL (rea=%v de=%v)", m.DirectionalState, m.REA, m.DE)
	}
}

func TestEmptySamplesNeutral(t *testing.T) {
	m := NewDirEngine().Evaluate(nil, 100, 95, 10, dirDefaults)
	if m.DirectionalState != models.DirectionalNone || m.OpeningBias != models.BiasNeutral {
		t.Fatalf("empty history should be fully neutral, got %+v", m)
	}
}
