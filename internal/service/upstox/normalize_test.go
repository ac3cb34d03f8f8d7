package upstox

import (
	"encoding/json"
	"testing"
	"time"

	"OptionPulse/internal/domain/models"
)

const chainFixture = `{
  "status": "success",
  "data": [
    {
      "expiry": "2026-08-25",
      "strike_price": 24400,
      "underlying_key": "NSE_INDEX|Nifty 50",
      "underlying_spot_price": 24512.4,
      "call_options": {
        "instrument_key": "NSE_FO|50001",
        "market_data": {"ltp": 160.5, "volume": 120000, "oi": 500000},
        "option_greeks": {"delta": 0.62, "vega": 0.09, "theta": -0.04, "gamma": 0.002, "iv": 13.1}
      },
      "put_options": {
        "instrument_key": "NSE_FO|50002",
        "market_data": {"ltp": 48.2, "volume": 90000, "oi": 620000},
        "option_greeks": {"delta": -0.38, "vega": 0.09, "theta": -0.03, "gamma": 0.002, "iv": 13.8}
      }
    },
    {
      "expiry": "2026-08-25",
      "strike_price": 24500,
      "underlying_spot_price": 24512.4,
      "call_options": {
        "market_data": {"ltp": 98.0},
        "option_greeks": {"delta": 0.51, "vega": 0.1, "theta": -0.05, "gamma": 0.003, "iv": 12.9}
      },
      "put_options": {
        "market_data": {"ltp": 85.0},
        "option_greeks": {"delta": -0.49, "vega": 0.1, "theta": -0.05, "gamma": 0.003, "iv": 13.2}
      }
    },
    {
      "expiry": "2026-08-25",
      "strike_price": 0,
      "underlying_spot_price": 24512.4,
      "call_options": {"market_data": {}, "option_greeks": {}},
      "put_options": {"market_data": {}, "option_greeks": {}}
    }
  ]
}`

func TestNormalizeChain(t *testing.T) {
	var resp chainResponse
	if err := json.Unmarshal([]byte(chainFixture), &resp); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	chain, err := normalize(&resp, "2026-08-25", now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	// The zero strike is dropped; two strikes remain, each with CE and PE.
	if len(chain.Options) != 4 {
		t.Fatalf("options = %d, want 4", len(chain.Options))
	}
	if chain.UnderlyingPrice != 24512.4 {
		t.Fatalf("underlying = %v", chain.UnderlyingPrice)
	}
	if chain.ATMStrike != 24500 {
		t.Fatalf("atm = %v, want 24500", chain.ATMStrike)
	}
	if chain.Timestamp != now || chain.ExpiryDate != "2026-08-25" {
		t.Fatalf("timestamp/expiry = %v/%s", chain.Timestamp, chain.ExpiryDate)
	}

	ce := chain.ATMOption(models.OptionCall)
	if ce == nil || ce.Delta != 0.51 || ce.LTP != 98.0 {
		t.Fatalf("atm call = %+v", ce)
	}
	pe := chain.ATMOption(models.OptionPut)
	if pe == nil || pe.Delta != -0.49 {
		t.Fatalf("atm put = %+v", pe)
	}
}

func TestNormalizeRejectsEmptyChain(t *testing.T) {
	if _, err := normalize(&chainResponse{}, "2026-08-25", time.Now()); err == nil {
		t.Fatal("empty payload must error")
	}

	// Only unusable strikes.
	resp := &chainResponse{Data: []chainNode{{StrikePrice: 0}}}
	if _, err := normalize(resp, "2026-08-25", time.Now()); err == nil {
		t.Fatal("all-zero strikes must error")
	}
}

func TestParseCandle(t *testing.T) {
	row := []interface{}{"2026-08-21T00:00:00+05:30", 24300.0, 24600.0, 24200.0, 24450.0, 1.2e8, 0.0}
	ohlc, err := parseCandle(row)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ohlc.Date != "2026-08-21" {
		t.Fatalf("date = %s", ohlc.Date)
	}
	if ohlc.Open != 24300 || ohlc.High != 24600 || ohlc.Low != 24200 || ohlc.Close != 24450 {
		t.Fatalf("ohlc = %+v", ohlc)
	}

	if _, err := parseCandle([]interface{}{"ts", 1.0}); err == nil {
		t.Fatal("short row must error")
	}
	if _, err := parseCandle([]interface{}{"ts", "not-a-number", 1.0, 1.0, 1.0}); err == nil {
		t.Fatal("non-numeric field must error")
	}
}
