package market

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoData           = errors.New("no candles for requested range")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidCandle    = errors.New("candle has negative or non-finite values")
	ErrUnordered        = errors.New("candles are not strictly increasing in time")
	ErrUpstream         = errors.New("market data provider failed")
)

// Provider supplies historical bars for a symbol and timeframe.
//
// Implementations return a normalized Series (ordered, de-duplicated) covering
// [start, end] or fail; they never return silently truncated data.
type Provider interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) (Series, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, symbol, timeframe string, start, end time.Time) (Series, error)

func (f ProviderFunc) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) (Series, error) {
	return f(ctx, symbol, timeframe, start, end)
}
