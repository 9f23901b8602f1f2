package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"backtest-core/pkg/market/binance"
)

// BinanceProvider sources candles from the Binance spot klines endpoint.
type BinanceProvider struct {
	client *binance.Client
}

// NewBinanceProvider creates a provider; requestsPerSec paces REST calls.
func NewBinanceProvider(testnet bool, requestsPerSec float64) *BinanceProvider {
	return &BinanceProvider{client: binance.NewClient(testnet, requestsPerSec)}
}

// NewBinanceProviderWithClient wraps an existing client (tests point it at an httptest server).
func NewBinanceProviderWithClient(c *binance.Client) *BinanceProvider {
	return &BinanceProvider{client: c}
}

// FetchCandles pulls every kline whose open time falls in [start, end].
func (p *BinanceProvider) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) (Series, error) {
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: empty range %s..%s", ErrNoData, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	symbol = strings.ToUpper(symbol)
	raw, err := p.client.KlinesRange(ctx, symbol, timeframe, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s %s klines: %w", ErrUpstream, symbol, timeframe, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		candles = append(candles, Candle{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		})
	}

	series := Normalize(candles)
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, err)
	}
	if gaps := series.Gaps(step); gaps > 0 {
		log.Warn().Str("symbol", symbol).Str("timeframe", timeframe).Int("gaps", gaps).Msg("candle series has gaps")
	}
	return series, nil
}
