package usecase

import (
	"testing"
	"time"

	"OptionPulse/internal/domain/models"
)

func TestPriceMinutesAgoTolerance(t *testing.T) {
	h := NewPriceHistory()
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)

	h.Add(models.PriceSample{Timestamp: now.Add(-10 * time.Minute), Price: 100})
	h.Add(models.PriceSample{Timestamp: now.Add(-5 * time.Minute), Price: 105})
	h.Add(models.PriceSample{Timestamp: now, Price: 110})

	if p := h.PriceMinutesAgo(5, now); p == nil || *p != 105 {
		t.Fatalf("5m lookup = %v, want 105", p)
	}
	// 7 minutes ago: nearest sample is 2 minutes away, exactly at tolerance.
	if p := h.PriceMinutesAgo(7, now); p == nil || *p != 105 {
		t.Fatalf("7m lookup = %v, want 105 within tolerance", p)
	}
	// 13 minutes ago: nearest sample is 3 minutes away, outside tolerance.
	if p := h.PriceMinutesAgo(13, now); p != nil {
		t.Fatalf("13m lookup = %v, want nil outside tolerance", *p)
	}
}

func TestRollingBufferTrimsToWindow(t *testing.T) {
	h := NewPriceHistory()
	start := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		h.Add(models.PriceSample{Timestamp: start.Add(time.Duration(i) * time.Minute), Price: float64(i)})
	}

	// The full session buffer keeps everything.
	if h.Len() != 60 {
		t.Fatalf("session len = %d, want 60", h.Len())
	}
	// The rolling buffer only serves lookups inside the last 15 minutes.
	now := start.Add(59 * time.Minute)
	if p := h.PriceMinutesAgo(14, now); p == nil {
		t.Fatal("14m lookup should hit the rolling buffer")
	}
	if p := h.PriceMinutesAgo(30, now); p != nil {
		t.Fatalf("30m lookup = %v, want nil after trim", *p)
	}
}

func TestSessionRollsAtDayBoundary(t *testing.T) {
	// 15:25 IST on a Monday.
	d1 := time.Date(2026, 8, 24, 9, 55, 0, 0, time.UTC)
	st := NewSessionState("alice", d1)

	st.ObserveOpen(24500, true)
	st.History.Add(models.PriceSample{Timestamp: d1, Price: 24510})
	st.Baseline = &models.AggregatedGreeks{Call: models.GreekSide{Delta: 1}}
	st.NextSequence()
	st.Latest = &models.PublishedSnapshot{Sequence: 1}

	if st.RollToDay(d1.Add(time.Minute)) {
		t.Fatal("same day must not roll")
	}

	d2 := d1.Add(24 * time.Hour)
	if !st.RollToDay(d2) {
		t.Fatal("new IST date must roll")
	}
	if st.OpenPrice != 0 || st.OpenAuthoritative() {
		t.Fatal("open price must clear on roll")
	}
	if st.Baseline != nil || st.History.Len() != 0 || st.Sequence != 0 || st.Latest != nil {
		t.Fatal("session state must clear on roll")
	}
}

func TestObserveOpenCandleWins(t *testing.T) {
	st := NewSessionState("alice", time.Now())

	// First poll stands in until the candle arrives.
	st.ObserveOpen(100, false)
	if st.OpenPrice != 100 || st.OpenAuthoritative() {
		t.Fatalf("fallback open = %v auth=%v", st.OpenPrice, st.OpenAuthoritative())
	}

	// A later poll must not move the fallback.
	st.ObserveOpen(101, false)
	if st.OpenPrice != 100 {
		t.Fatalf("fallback open moved to %v", st.OpenPrice)
	}

	// The candle overrides and locks the value.
	st.ObserveOpen(99.5, true)
	if st.OpenPrice != 99.5 || !st.OpenAuthoritative() {
		t.Fatalf("candle open = %v auth=%v", st.OpenPrice, st.OpenAuthoritative())
	}
	st.ObserveOpen(102, false)
	if st.OpenPrice != 99.5 {
		t.Fatalf("candle open overwritten to %v", st.OpenPrice)
	}

	// Zero and negative prices are feed noise, never stored.
	st2 := NewSessionState("bob", time.Now())
	st2.ObserveOpen(0, true)
	st2.ObserveOpen(-1, false)
	if st2.OpenPrice != 0 {
		t.Fatalf("invalid price stored: %v", st2.OpenPrice)
	}
}
