package upstox

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"OptionPulse/internal/domain/models"
	"OptionPulse/internal/domain/repository"
	"OptionPulse/internal/service/ratelimit"
	pkghttp "OptionPulse/pkg/http"
	"OptionPulse/pkg/logger"
	"OptionPulse/pkg/util"
)

const limiterKey = "upstox"

// Config holds the feed connection parameters.
type Config struct {
	BaseURL           string
	InstrumentKey     string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client implements the MarketFeed against the Upstox v2 REST API. One
// instance is shared across users; the bearer token is per-call.
type Client struct {
	cfg     Config
	http    *pkghttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger
	now     func() time.Time
}

func New(cfg Config, log *logger.Logger) repository.MarketFeed {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 3
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}
	return &Client{
		cfg:     cfg,
		http:    pkghttp.NewClient(pkghttp.WithTimeout(cfg.Timeout)),
		limiter: ratelimit.New(),
		log:     log,
		now:     time.Now,
	}
}

// FetchChain pulls and normalizes the option chain for the given expiry.
func (c *Client) FetchChain(ctx context.Context, token, expiry string) (*models.Chain, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var resp chainResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    c.cfg.BaseURL + "/v2/option/chain",
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Accept":        "application/json",
		},
		QueryParams: map[string][]string{
			"instrument_key": {c.cfg.InstrumentKey},
			"expiry_date":    {expiry},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch option chain: %w", err)
	}

	return normalize(&resp, expiry, c.now())
}

// FetchPrevDayOHLC returns the most recent completed daily candle strictly
// before the given instant. The lookback spans a week so holidays and long
// weekends still yield a candle.
func (c *Client) FetchPrevDayOHLC(ctx context.Context, token string, before time.Time) (*models.OHLC, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	ist := before.In(util.IST)
	to := ist.AddDate(0, 0, -1).Format("2006-01-02")
	from := ist.AddDate(0, 0, -8).Format("2006-01-02")

	var resp candleResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL: fmt.Sprintf("%s/v2/historical-candle/%s/day/%s/%s",
			c.cfg.BaseURL, url.PathEscape(c.cfg.InstrumentKey), to, from),
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Accept":        "application/json",
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch daily candles: %w", err)
	}
	if len(resp.Data.Candles) == 0 {
		return nil, fmt.Errorf("no daily candles before %s", to)
	}

	// Candles arrive newest first.
	return parseCandle(resp.Data.Candles[0])
}

// FetchOpenCandle returns the day's opening one-minute candle, the
// authoritative source for the session open price.
func (c *Client) FetchOpenCandle(ctx context.Context, token string, day time.Time) (*models.OHLC, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var resp candleResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL: fmt.Sprintf("%s/v2/historical-candle/intraday/%s/1minute",
			c.cfg.BaseURL, url.PathEscape(c.cfg.InstrumentKey)),
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Accept":        "application/json",
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch intraday candles: %w", err)
	}
	if len(resp.Data.Candles) == 0 {
		return nil, fmt.Errorf("no intraday candles yet")
	}

	// Newest first: the earliest candle of the session sits at the end.
	return parseCandle(resp.Data.Candles[len(resp.Data.Candles)-1])
}

// wait blocks until the local token bucket permits a request; ctx cancellation
// aborts the wait.
func (c *Client) wait(ctx context.Context) error {
	for {
		if c.limiter.Allow(limiterKey, float64(c.cfg.Burst), c.cfg.RequestsPerSecond) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
