package market

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-core/pkg/market/binance"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNormalizeSortsAndDedups(t *testing.T) {
	in := []Candle{
		{Time: t0.Add(2 * time.Minute), Close: 3},
		{Time: t0, Close: 1},
		{Time: t0.Add(time.Minute), Close: 2},
		{Time: t0.Add(time.Minute), Close: 2.5},
	}
	s := Normalize(in)
	require.Len(t, s, 3)
	assert.Equal(t, []float64{1, 2.5, 3}, s.Closes())
	assert.NoError(t, s.Validate())
	assert.Equal(t, t0, in[1].Time, "input must not be reordered")
}

func TestSeriesValidate(t *testing.T) {
	ok := Series{{Time: t0, Close: 1}, {Time: t0.Add(time.Minute), Close: 2}}
	assert.NoError(t, ok.Validate())

	unordered := Series{{Time: t0, Close: 1}, {Time: t0, Close: 2}}
	assert.ErrorIs(t, unordered.Validate(), ErrUnordered)

	neg := Series{{Time: t0, Close: -1}}
	assert.ErrorIs(t, neg.Validate(), ErrInvalidCandle)

	nan := Series{{Time: t0, Close: math.NaN()}}
	assert.ErrorIs(t, nan.Validate(), ErrInvalidCandle)
}

func TestSeriesGaps(t *testing.T) {
	s := Series{{Time: t0}, {Time: t0.Add(time.Minute)}, {Time: t0.Add(5 * time.Minute)}}
	assert.Equal(t, 1, s.Gaps(time.Minute))
	assert.Equal(t, 0, s.Gaps(0))
}

func TestSeriesClosed(t *testing.T) {
	s := Series{{Time: t0}, {Time: t0.Add(time.Hour)}, {Time: t0.Add(2 * time.Hour)}}
	assert.Len(t, s.Closed(time.Hour, t0.Add(3*time.Hour)), 3)
	assert.Len(t, s.Closed(time.Hour, t0.Add(150*time.Minute)), 2)
	assert.Len(t, s.Closed(time.Hour, t0.Add(2*time.Hour)), 2)
	assert.Empty(t, s.Closed(time.Hour, t0.Add(30*time.Minute)))
}

func TestParseTimeframe(t *testing.T) {
	d, err := ParseTimeframe("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = ParseTimeframe("7m")
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

// klineServer serves n consecutive one-minute klines starting at t0.
func klineServer(t *testing.T, n int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		q := r.URL.Query()
		startMs, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		endMs, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		rows := [][]any{}
		for i := 0; i < n && len(rows) < limit; i++ {
			open := t0.Add(time.Duration(i) * time.Minute).UnixMilli()
			if open < startMs || open > endMs {
				continue
			}
			price := strconv.FormatFloat(100+float64(i), 'f', 2, 64)
			rows = append(rows, []any{open, price, price, price, price, "1.5", open + 59999, "150", 10, "0.5", "50", "0"})
		}
		w.Header().Set("X-MBX-USED-WEIGHT-1M", "12")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestBinanceProviderPaginates(t *testing.T) {
	var calls int32
	srv := klineServer(t, 2500, &calls)
	defer srv.Close()

	client := binance.NewClient(false, 0)
	client.BaseURL = srv.URL
	p := NewBinanceProviderWithClient(client)

	s, err := p.FetchCandles(context.Background(), "btcusdt", "1m", t0, t0.Add(3000*time.Minute))
	require.NoError(t, err)
	require.Len(t, s, 2500)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 100.0, s[0].Close)
	assert.Equal(t, 2599.0, s[2499].Close)
	assert.NoError(t, s.Validate())

	used, _, _ := client.Weight().Usage()
	assert.Equal(t, 12, used)
}

func TestBinanceProviderEmptyRange(t *testing.T) {
	var calls int32
	srv := klineServer(t, 10, &calls)
	defer srv.Close()

	client := binance.NewClient(false, 0)
	client.BaseURL = srv.URL
	p := NewBinanceProviderWithClient(client)

	_, err := p.FetchCandles(context.Background(), "BTCUSDT", "1m", t0.Add(time.Hour), t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = p.FetchCandles(context.Background(), "BTCUSDT", "2m", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestBinanceProviderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1003,"msg":"Too many requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := binance.NewClient(false, 0)
	client.BaseURL = srv.URL
	_, err := NewBinanceProviderWithClient(client).FetchCandles(context.Background(), "BTCUSDT", "1m", t0, t0.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestBinanceProviderRejectsMalformedKlines(t *testing.T) {
	open := t0.UnixMilli()
	rows := map[string][]any{
		"short row": {open, "100", "100", "100", "100"},
		"bad price": {open, "100", "100", "100", "n/a", "1.5", open + 59999, "150", 10, "0.5", "50", "0"},
		"bad time":  {"soon", "100", "100", "100", "100", "1.5", open + 59999, "150", 10, "0.5", "50", "0"},
	}
	for name, row := range rows {
		t.Run(name, func(t *testing.T) {
			good := []any{open - 60000, "99", "99", "99", "99", "1", open - 1, "99", 1, "0.5", "50", "0"}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode([][]any{good, row})
			}))
			defer srv.Close()

			client := binance.NewClient(false, 0)
			client.BaseURL = srv.URL
			s, err := NewBinanceProviderWithClient(client).FetchCandles(context.Background(), "BTCUSDT", "1m", t0.Add(-time.Hour), t0.Add(time.Hour))
			assert.Nil(t, s)
			assert.ErrorIs(t, err, binance.ErrMalformedKline)
			assert.ErrorIs(t, err, ErrUpstream)
		})
	}
}

func TestMockProviderDeterministicAndOverlapping(t *testing.T) {
	m := NewMockProvider()
	ctx := context.Background()

	a, err := m.FetchCandles(ctx, "BTCUSDT", "1h", t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, a, 49)
	require.NoError(t, a.Validate())

	b, err := m.FetchCandles(ctx, "BTCUSDT", "1h", t0.Add(24*time.Hour), t0.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a[24:], b[:25])

	for i := 1; i < len(a); i++ {
		assert.Equal(t, a[i-1].Close, a[i].Open)
		assert.GreaterOrEqual(t, a[i].High, a[i].Low)
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	fail bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("connection refused")
	}
	b, ok := s.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection refused")
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func TestCachedProviderReadThrough(t *testing.T) {
	var upstreamCalls int
	upstream := ProviderFunc(func(ctx context.Context, symbol, tf string, start, end time.Time) (Series, error) {
		upstreamCalls++
		return Series{{Time: t0, Close: 1}, {Time: t0.Add(time.Hour), Close: 2}}, nil
	})
	store := newMemStore()
	c := NewCachedProvider(upstream, store, 10*time.Minute)
	c.Now = func() time.Time { return t0.Add(30 * 24 * time.Hour) }

	first, err := c.FetchCandles(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	second, err := c.FetchCandles(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, upstreamCalls)
	assert.Equal(t, first.Closes(), second.Closes())
	assert.True(t, first[1].Time.Equal(second[1].Time))
	for _, ttl := range store.ttls {
		assert.Equal(t, 10*time.Minute, ttl)
	}
}

func TestCachedProviderCapsTTLAtFormingBar(t *testing.T) {
	upstream := ProviderFunc(func(ctx context.Context, symbol, tf string, start, end time.Time) (Series, error) {
		return Series{{Time: t0, Close: 1}}, nil
	})
	store := newMemStore()
	c := NewCachedProvider(upstream, store, 10*time.Minute)
	now := t0.Add(58 * time.Minute)
	c.Now = func() time.Time { return now }

	_, err := c.FetchCandles(context.Background(), "BTCUSDT", "1h", t0.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, store.ttls, 1)
	for _, ttl := range store.ttls {
		assert.Equal(t, 2*time.Minute, ttl)
	}
}

func TestCachedProviderDegradesOnStoreFailure(t *testing.T) {
	var upstreamCalls int
	upstream := ProviderFunc(func(ctx context.Context, symbol, tf string, start, end time.Time) (Series, error) {
		upstreamCalls++
		return Series{{Time: t0, Close: 1}}, nil
	})
	store := newMemStore()
	store.fail = true
	c := NewCachedProvider(upstream, store, time.Minute)

	for i := 0; i < 2; i++ {
		s, err := c.FetchCandles(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, s, 1)
	}
	assert.Equal(t, 2, upstreamCalls)
}
