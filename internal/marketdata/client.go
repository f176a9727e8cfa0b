package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"trading-alerts/internal/model"
)

// ErrNoData is returned when the provider has no bars or quote for a symbol.
var ErrNoData = errors.New("no market data")

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("market data: status %d: %s", e.Code, e.Body)
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL         string // trading API (assets)
	DataURL         string // market data API (bars, quotes)
	APIKey          string
	APISecret       string
	Feed            string  // stock feed, e.g. "iex"
	RequestsPerSec  float64 // 0 disables limiting
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
	OnBreakerChange func(from, to BreakerState)
}

// Client talks to an Alpaca-style broker REST API.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker
	log     *logrus.Entry
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig, log *logrus.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.DataURL = strings.TrimRight(cfg.DataURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		burst := int(cfg.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	log = log.WithField("component", "marketdata")
	cb := NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset)
	cb.OnStateChange = func(from, to BreakerState) {
		log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("market data breaker state change")
		if cfg.OnBreakerChange != nil {
			cfg.OnBreakerChange(from, to)
		}
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		breaker: cb,
		log:     log,
	}
}

// Breaker exposes the breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// IsCrypto reports whether symbol is a crypto pair (BTC/USD style).
func IsCrypto(symbol string) bool { return strings.Contains(symbol, "/") }

type wireBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

func (b wireBar) bar() model.Bar {
	return model.Bar{TS: b.T.UTC(), Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V}
}

type wireQuote struct {
	AP float64 `json:"ap"`
	BP float64 `json:"bp"`
}

// GetBars returns ascending bars for symbol in [start, end], following
// page tokens until the provider reports no more pages.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	var bars []model.Bar
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeframe", tf.Broker)
		q.Set("start", start.UTC().Format(time.RFC3339))
		q.Set("end", end.UTC().Format(time.RFC3339))
		q.Set("limit", "10000")
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		var next *string
		if IsCrypto(symbol) {
			q.Set("symbols", symbol)
			var resp struct {
				Bars          map[string][]wireBar `json:"bars"`
				NextPageToken *string              `json:"next_page_token"`
			}
			if err := c.get(ctx, c.cfg.DataURL+"/v1beta3/crypto/us/bars", q, &resp); err != nil {
				return nil, fmt.Errorf("bars %s %s: %w", symbol, tf.Name, err)
			}
			for _, b := range resp.Bars[symbol] {
				bars = append(bars, b.bar())
			}
			next = resp.NextPageToken
		} else {
			q.Set("adjustment", "raw")
			q.Set("feed", c.cfg.Feed)
			var resp struct {
				Bars          []wireBar `json:"bars"`
				NextPageToken *string   `json:"next_page_token"`
			}
			endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars", c.cfg.DataURL, url.PathEscape(symbol))
			if err := c.get(ctx, endpoint, q, &resp); err != nil {
				return nil, fmt.Errorf("bars %s %s: %w", symbol, tf.Name, err)
			}
			for _, b := range resp.Bars {
				bars = append(bars, b.bar())
			}
			next = resp.NextPageToken
		}

		if next == nil || *next == "" {
			break
		}
		pageToken = *next
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("bars %s %s: %w", symbol, tf.Name, ErrNoData)
	}
	return bars, nil
}

// LatestPrice returns the quote midpoint, falling back to the latest bar
// close when the quote is one-sided.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var quote wireQuote
	var bar wireBar

	if IsCrypto(symbol) {
		q := url.Values{"symbols": {symbol}}
		var qr struct {
			Quotes map[string]wireQuote `json:"quotes"`
		}
		if err := c.get(ctx, c.cfg.DataURL+"/v1beta3/crypto/us/latest/quotes", q, &qr); err != nil {
			return 0, fmt.Errorf("quote %s: %w", symbol, err)
		}
		quote = qr.Quotes[symbol]
		if mid, ok := midpoint(quote); ok {
			return mid, nil
		}
		var br struct {
			Bars map[string]wireBar `json:"bars"`
		}
		if err := c.get(ctx, c.cfg.DataURL+"/v1beta3/crypto/us/latest/bars", q, &br); err != nil {
			return 0, fmt.Errorf("latest bar %s: %w", symbol, err)
		}
		bar = br.Bars[symbol]
	} else {
		q := url.Values{"feed": {c.cfg.Feed}}
		base := fmt.Sprintf("%s/v2/stocks/%s", c.cfg.DataURL, url.PathEscape(symbol))
		var qr struct {
			Quote wireQuote `json:"quote"`
		}
		if err := c.get(ctx, base+"/quotes/latest", q, &qr); err != nil {
			return 0, fmt.Errorf("quote %s: %w", symbol, err)
		}
		if mid, ok := midpoint(qr.Quote); ok {
			return mid, nil
		}
		var br struct {
			Bar wireBar `json:"bar"`
		}
		if err := c.get(ctx, base+"/bars/latest", q, &br); err != nil {
			return 0, fmt.Errorf("latest bar %s: %w", symbol, err)
		}
		bar = br.Bar
	}

	if bar.C <= 0 {
		return 0, fmt.Errorf("price %s: %w", symbol, ErrNoData)
	}
	return bar.C, nil
}

func midpoint(q wireQuote) (float64, bool) {
	if q.AP <= 0 || q.BP <= 0 {
		return 0, false
	}
	return (q.AP + q.BP) / 2, true
}

type wireAsset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	Exchange string `json:"exchange"`
	Tradable bool   `json:"tradable"`
}

// ListAssets returns every active asset offered by the broker.
func (c *Client) ListAssets(ctx context.Context) ([]model.Asset, error) {
	var raw []wireAsset
	if err := c.get(ctx, c.cfg.BaseURL+"/v2/assets", url.Values{"status": {"active"}}, &raw); err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	out := make([]model.Asset, 0, len(raw))
	for _, a := range raw {
		out = append(out, model.Asset{
			Symbol:   a.Symbol,
			Name:     a.Name,
			Class:    a.Class,
			Exchange: a.Exchange,
			Tradable: a.Tradable,
		})
	}
	return out, nil
}

// get performs one rate-limited GET through the breaker and decodes the
// JSON body into out. 4xx responses do not count against the breaker.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
		req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecret)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.WithError(err).WithField("url", req.URL.Path).Warn("request failed")
			return err
		}
		defer resp.Body.Close()

		c.log.WithFields(logrus.Fields{
			"url":      req.URL.Path,
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
		}).Debug("request complete")

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, isClientError)
}

func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}
