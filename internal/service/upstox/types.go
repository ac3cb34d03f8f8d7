package upstox

// Raw wire shapes of the Upstox v2 REST API. These stop at the normalize
// step; nothing downstream ever sees them.

type chainResponse struct {
	Status string      `json:"status"`
	Data   []chainNode `json:"data"`
}

type chainNode struct {
	Expiry              string     `json:"expiry"`
	PCR                 float64    `json:"pcr"`
	StrikePrice         float64    `json:"strike_price"`
	UnderlyingKey       string     `json:"underlying_key"`
	UnderlyingSpotPrice float64    `json:"underlying_spot_price"`
	CallOptions         optionNode `json:"call_options"`
	PutOptions          optionNode `json:"put_options"`
}

type optionNode struct {
	InstrumentKey string       `json:"instrument_key"`
	MarketData    marketData   `json:"market_data"`
	OptionGreeks  optionGreeks `json:"option_greeks"`
}

type marketData struct {
	LTP        float64 `json:"ltp"`
	ClosePrice float64 `json:"close_price"`
	Volume     float64 `json:"volume"`
	OI         float64 `json:"oi"`
	BidPrice   float64 `json:"bid_price"`
	BidQty     float64 `json:"bid_qty"`
	AskPrice   float64 `json:"ask_price"`
	AskQty     float64 `json:"ask_qty"`
	PrevOI     float64 `json:"prev_oi"`
}

type optionGreeks struct {
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Gamma float64 `json:"gamma"`
	Delta float64 `json:"delta"`
	IV    float64 `json:"iv"`
}

// candleResponse carries OHLC rows as positional arrays:
// [timestamp, open, high, low, close, volume, oi].
type candleResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]interface{} `json:"candles"`
	} `json:"data"`
}
