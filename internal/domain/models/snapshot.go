package models

import "time"

// PublishedSnapshot is the single immutable struct handed to the publish
// sink once per successful cycle. It is created fresh each cycle and
// superseded by the next one; subscribers and the market-data log see the
// same value.
type PublishedSnapshot struct {
	Sequence        uint64             `json:"_sequence"`
	PollTimestamp   time.Time          `json:"_poll_timestamp"`
	Timestamp       time.Time          `json:"timestamp"`
	Username        string             `json:"username,omitempty"`
	UnderlyingPrice float64            `json:"underlying_price"`
	OpenPrice       float64            `json:"open_price"`
	ATMStrike       float64            `json:"atm_strike"`
	ExpiryDate      string             `json:"expiry_date,omitempty"`
	OptionCount     int                `json:"option_count"`
	Options         []Option           `json:"options,omitempty"`
	Aggregated      *AggregatedGreeks  `json:"aggregated_greeks"`
	Baseline        *AggregatedGreeks  `json:"baseline_greeks"`
	Drift           *AggregatedGreeks  `json:"change_from_baseline"`
	Volatility      *VolatilityMetrics `json:"volatility_metrics"`
	Direction       *DirectionMetrics  `json:"direction_metrics"`
	Signals         []SignalResult     `json:"signals"`
	Message         string             `json:"message,omitempty"`
}

// Placeholder returns the snapshot published synchronously when a user is
// first discovered, before any network call, so subscribers never observe a
// hard gap between login and the first poll.
func Placeholder(username string, now time.Time) *PublishedSnapshot {
	return &PublishedSnapshot{
		Timestamp: now,
		Username:  username,
		Signals:   []SignalResult{},
		Message:   "Authenticated as " + username + ". Waiting for first data poll...",
	}
}
