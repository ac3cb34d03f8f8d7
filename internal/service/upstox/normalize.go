package upstox

import (
	"fmt"
	"time"

	"OptionPulse/internal/domain/models"
	"OptionPulse/internal/services/analytics"
)

// normalize converts the raw chain payload into the canonical model. Strikes
// without a positive price are dropped, the spot is taken from the payload
// and the ATM strike is resolved here so downstream stages never re-derive it.
func normalize(resp *chainResponse, expiry string, now time.Time) (*models.Chain, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("upstox: empty option chain")
	}

	chain := &models.Chain{
		Timestamp:  now,
		ExpiryDate: expiry,
		Options:    make([]models.Option, 0, len(resp.Data)*2),
	}

	for _, node := range resp.Data {
		if node.StrikePrice <= 0 {
			continue
		}
		if chain.UnderlyingPrice == 0 && node.UnderlyingSpotPrice > 0 {
			chain.UnderlyingPrice = node.UnderlyingSpotPrice
		}
		chain.Options = append(chain.Options,
			toOption(node.StrikePrice, models.OptionCall, node.CallOptions),
			toOption(node.StrikePrice, models.OptionPut, node.PutOptions),
		)
	}

	if len(chain.Options) == 0 {
		return nil, fmt.Errorf("upstox: no usable strikes in chain")
	}
	if chain.UnderlyingPrice <= 0 {
		return nil, fmt.Errorf("upstox: missing underlying spot price")
	}

	chain.ATMStrike = analytics.ATMStrike(chain.Strikes(), chain.UnderlyingPrice)
	return chain, nil
}

func toOption(strike float64, typ models.OptionType, node optionNode) models.Option {
	return models.Option{
		Strike: strike,
		Type:   typ,
		Delta:  node.OptionGreeks.Delta,
		Vega:   node.OptionGreeks.Vega,
		Theta:  node.OptionGreeks.Theta,
		Gamma:  node.OptionGreeks.Gamma,
		IV:     node.OptionGreeks.IV,
		OI:     node.MarketData.OI,
		LTP:    node.MarketData.LTP,
		Volume: node.MarketData.Volume,
	}
}

// parseCandle decodes one positional candle row.
func parseCandle(row []interface{}) (*models.OHLC, error) {
	if len(row) < 5 {
		return nil, fmt.Errorf("upstox: candle row too short: %d fields", len(row))
	}
	ts, ok := row[0].(string)
	if !ok {
		return nil, fmt.Errorf("upstox: candle timestamp not a string")
	}
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		f, ok := row[i+1].(float64)
		if !ok {
			return nil, fmt.Errorf("upstox: candle field %d not numeric", i+1)
		}
		vals[i] = f
	}

	date := ts
	if len(date) > 10 {
		date = date[:10]
	}
	return &models.OHLC{
		Date:  date,
		Open:  vals[0],
		High:  vals[1],
		Low:   vals[2],
		Close: vals[3],
	}, nil
}
