package analytics

import (
	"math"
	"time"

	"OptionPulse/internal/domain/models"
)

const (
	ibWindow        = 45 * time.Minute
	acceptanceDelay = 30 * time.Minute
	candlePeriod    = 5 * time.Minute
)

// DirEngine classifies the session's directional character from the full
// session price history. It is stateless between cycles; everything derives
// from the samples each time.
type DirEngine struct{}

func NewDirEngine() *DirEngine {
	return &DirEngine{}
}

func (e *DirEngine) Evaluate(samples []models.PriceSample, openPrice, prevClose, prevRange float64, s models.Settings) *models.DirectionMetrics {
	m := &models.DirectionMetrics{
		OpeningBias:      models.BiasNeutral,
		DirectionalState: models.DirectionalNone,
	}
	if len(samples) == 0 || openPrice <= 0 {
		return m
	}

	// Effective session start is the first sample actually seen, not the
	// nominal opening bell; a late first poll otherwise poisons the IB.
	start := samples[0].Timestamp

	if prevClose > 0 {
		m.Gap = openPrice - prevClose
	}
	if prevRange > 0 && m.Gap != 0 {
		pct := math.Abs(m.Gap) / prevRange
		m.GapPct = &pct
	}

	m.AcceptanceRatio = acceptanceRatio(samples, openPrice, m.Gap, start)
	m.OpeningBias = openingBias(m.Gap, m.AcceptanceRatio, s)

	ib, rea, reUp, reDown := rangeExtension(samples, start)
	m.IB = ib
	m.REUp = reUp
	m.REDown = reDown
	m.REA = rea

	m.DE = deltaEfficiency(samples, openPrice)

	m.DirectionalState = classify(m, s)
	return m
}

// acceptanceRatio is the fraction of 5-minute candle closes lying on the gap
// side of the open. Only candles closing more than 30 minutes after the
// effective session start count; the opening auction is too noisy to accept
// a gap from.
func acceptanceRatio(samples []models.PriceSample, openPrice, gap float64, start time.Time) *float64 {
	if gap == 0 {
		return nil
	}
	cutoff := start.Add(acceptanceDelay)

	// Last sample per 5-minute bucket is that candle's close.
	type candle struct {
		ts    time.Time
		close float64
	}
	var candles []candle
	var bucket int64 = -1
	for _, sm := range samples {
		b := sm.Timestamp.Unix() / int64(candlePeriod.Seconds())
		if b != bucket {
			candles = append(candles, candle{ts: sm.Timestamp, close: sm.Price})
			bucket = b
		} else {
			candles[len(candles)-1] = candle{ts: sm.Timestamp, close: sm.Price}
		}
	}

	var total, onSide int
	for _, c := range candles {
		if !c.ts.After(cutoff) {
			continue
		}
		total++
		if gap > 0 && c.close > openPrice {
			onSide++
		}
		if gap < 0 && c.close < openPrice {
			onSide++
		}
	}
	if total == 0 {
		return nil
	}
	ratio := float64(onSide) / float64(total)
	return &ratio
}

func openingBias(gap float64, ratio *float64, s models.Settings) models.OpeningBias {
	if gap == 0 || ratio == nil {
		return models.BiasNeutral
	}
	if *ratio < s.DirNeutralAcceptance {
		return models.BiasNeutral
	}
	if *ratio > s.DirAcceptanceThreshold {
		if gap > 0 {
			return models.BiasBullish
		}
		return models.BiasBearish
	}
	return models.BiasNeutral
}

// rangeExtension derives the Initial Balance from the first 45 minutes of
// effective session activity and the asymmetry of range extension beyond
// it. REA stays nil until at least one sample falls outside the IB window; a
// zero before the IB even ends would read as perfectly balanced.
func rangeExtension(samples []models.PriceSample, start time.Time) (*models.InitialBalance, *float64, *float64, *float64) {
	ibEnd := start.Add(ibWindow)

	ibHigh := math.Inf(-1)
	ibLow := math.Inf(1)
	dayHigh := math.Inf(-1)
	dayLow := math.Inf(1)
	outside := false

	for _, sm := range samples {
		if sm.Price > dayHigh {
			dayHigh = sm.Price
		}
		if sm.Price < dayLow {
			dayLow = sm.Price
		}
		if sm.Timestamp.After(ibEnd) {
			outside = true
			continue
		}
		if sm.Price > ibHigh {
			ibHigh = sm.Price
		}
		if sm.Price < ibLow {
			ibLow = sm.Price
		}
	}

	if math.IsInf(ibHigh, -1) {
		return nil, nil, nil, nil
	}
	ib := &models.InitialBalance{High: ibHigh, Low: ibLow, Range: ibHigh - ibLow}

	if !outside || ib.Range <= 0 {
		return ib, nil, nil, nil
	}

	reUp := math.Max(0, dayHigh-ibHigh)
	reDown := math.Max(0, ibLow-dayLow)
	rea := (reUp - reDown) / ib.Range
	return ib, &rea, &reUp, &reDown
}

// deltaEfficiency is net move over gross movement for the session, in [0,1].
func deltaEfficiency(samples []models.PriceSample, openPrice float64) *float64 {
	if len(samples) < 2 {
		return nil
	}
	var gross float64
	for i := 1; i < len(samples); i++ {
		gross += math.Abs(samples[i].Price - samples[i-1].Price)
	}
	if gross <= 0 {
		return nil
	}
	de := math.Abs(samples[len(samples)-1].Price-openPrice) / gross
	if de > 1 {
		de = 1
	}
	return &de
}

func classify(m *models.DirectionMetrics, s models.Settings) models.DirectionState {
	if m.REA != nil && m.DE != nil {
		if m.OpeningBias == models.BiasBullish && *m.REA > s.DirREABull && *m.DE > s.DirDEDirectional {
			return models.DirectionalBull
		}
		if m.OpeningBias == models.BiasBearish && *m.REA < s.DirREABear && *m.DE > s.DirDEDirectional {
			return models.DirectionalBear
		}
		if *m.DE < s.DirDENeutral && math.Abs(*m.REA) < s.DirREANeutralBand {
			return models.DirectionalNone
		}
	}
	return models.DirectionalNone
}
