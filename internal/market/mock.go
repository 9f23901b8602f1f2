package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"
)

// MockProvider generates synthetic candles for local development.
//
// Every bar is a pure function of (symbol, bar open time), so overlapping
// windows fetched by successive polls agree on shared bars.
type MockProvider struct {
	StartPrice float64
	Step       float64
	Seed       int64
}

// NewMockProvider returns a provider with sensible defaults.
func NewMockProvider() *MockProvider {
	return &MockProvider{StartPrice: 100, Step: 0.5, Seed: 1}
}

func (m *MockProvider) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) (Series, error) {
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	first := Align(start, step)
	if first.Before(start) {
		first = first.Add(step)
	}
	if first.After(end) {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}

	symbol = strings.ToUpper(symbol)
	out := make(Series, 0, int(end.Sub(first)/step)+1)
	for t := first; !t.After(end); t = t.Add(step) {
		n := t.UnixNano() / int64(step)
		open := m.price(symbol, n-1)
		closePrice := m.price(symbol, n)
		r := m.rng(symbol, n, 1)
		wick := m.step() * r.Float64()
		out = append(out, Candle{
			Time:   t.UTC(),
			Open:   open,
			High:   math.Max(open, closePrice) + wick,
			Low:    math.Max(math.Min(open, closePrice)-wick, 0),
			Close:  closePrice,
			Volume: 10 + 90*r.Float64(),
		})
	}
	return out, nil
}

// price is a slow two-wave oscillation plus per-bar noise, never below 1.
func (m *MockProvider) price(symbol string, n int64) float64 {
	base := m.StartPrice
	if base <= 0 {
		base = 100
	}
	x := float64(n)
	wave := 0.08*math.Sin(2*math.Pi*x/97) + 0.03*math.Sin(2*math.Pi*x/23)
	noise := (m.rng(symbol, n, 0).Float64()*2 - 1) * m.step()
	return math.Max(base*(1+wave)+noise, 1)
}

func (m *MockProvider) step() float64 {
	if m.Step == 0 {
		return 0.5
	}
	return m.Step
}

func (m *MockProvider) rng(symbol string, n int64, salt int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	seed := int64(h.Sum64()) ^ m.Seed ^ (n * 2654435761) ^ (salt << 56)
	return rand.New(rand.NewSource(seed))
}
