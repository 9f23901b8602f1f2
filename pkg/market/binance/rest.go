// Package binance is a small client for the public Binance spot market-data
// REST endpoints used to source candles.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MaxKlinesPerPage is the largest page Binance serves for /api/v3/klines.
const MaxKlinesPerPage = 1000

// Client wraps REST access to Binance public market data.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	limiter *rate.Limiter
	weight  *WeightTracker
}

// NewClient builds a REST client; use testnet to switch base URLs.
// requestsPerSec paces outgoing calls (<=0 disables pacing).
func NewClient(testnet bool, requestsPerSec float64) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	c := &Client{
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		weight:     NewWeightTracker(6000, time.Minute),
	}
	if requestsPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSec), 1)
	}
	return c
}

// Weight exposes the request-weight tracker fed from response headers.
func (c *Client) Weight() *WeightTracker {
	return c.weight
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "/api/v3/ping", nil)
	return err
}

// ServerTime fetches Binance server time in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, "/api/v3/time", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// Klines fetches a single page of klines.
func (c *Client) Klines(ctx context.Context, q KlineQuery) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", q.Symbol)
	params.Set("interval", q.Interval)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.StartTime > 0 {
		params.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	}
	if q.EndTime > 0 {
		params.Set("endTime", strconv.FormatInt(q.EndTime, 10))
	}

	body, err := c.do(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for i, item := range raw {
		k, err := parseKline(item)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// KlinesRange walks [startMs, endMs] page by page until Binance returns a
// short page or the range is exhausted.
func (c *Client) KlinesRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]Kline, error) {
	var out []Kline
	cursor := startMs
	for {
		page, err := c.Klines(ctx, KlineQuery{
			Symbol:    symbol,
			Interval:  interval,
			Limit:     MaxKlinesPerPage,
			StartTime: cursor,
			EndTime:   endMs,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)

		next := page[len(page)-1].OpenTime + 1
		if len(page) < MaxKlinesPerPage || next > endMs || next <= cursor {
			break
		}
		cursor = next
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.BaseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.weight.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if res.StatusCode >= 300 {
		log.Warn().Str("path", path).Int("status", res.StatusCode).Msg("binance request failed")
		return nil, fmt.Errorf("binance market data %s status %d: %s", path, res.StatusCode, string(body))
	}
	return body, nil
}

// ErrMalformedKline reports a kline row that cannot be decoded.
var ErrMalformedKline = errors.New("malformed kline")

// Binance returns 12 fields per kline; the last one is unused.
const klineFields = 11

func parseKline(row []any) (Kline, error) {
	if len(row) < klineFields {
		return Kline{}, fmt.Errorf("%w: %d fields", ErrMalformedKline, len(row))
	}
	p := rowParser{row: row}
	k := Kline{
		OpenTime:            p.integer(0),
		Open:                p.decimal(1),
		High:                p.decimal(2),
		Low:                 p.decimal(3),
		Close:               p.decimal(4),
		Volume:              p.decimal(5),
		CloseTime:           p.integer(6),
		QuoteVolume:         p.decimal(7),
		NumberOfTrades:      int(p.integer(8)),
		TakerBuyBaseVolume:  p.decimal(9),
		TakerBuyQuoteVolume: p.decimal(10),
	}
	if p.err != nil {
		return Kline{}, p.err
	}
	return k, nil
}

// rowParser decodes kline fields and keeps the first failure.
type rowParser struct {
	row []any
	err error
}

func (p *rowParser) fail(i int, v any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: field %d: unexpected value %v", ErrMalformedKline, i, v)
	}
}

func (p *rowParser) decimal(i int) float64 {
	switch t := p.row[i].(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			p.fail(i, t)
		}
		return f
	case float64:
		return t
	}
	p.fail(i, p.row[i])
	return 0
}

func (p *rowParser) integer(i int) int64 {
	if t, ok := p.row[i].(float64); ok && t == float64(int64(t)) {
		return int64(t)
	}
	p.fail(i, p.row[i])
	return 0
}
