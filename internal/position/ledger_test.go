package position

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func checkInvariants(t *testing.T, l *Ledger) {
	t.Helper()
	assert.True(t, (l.Balance() > 0) != (l.Held() > 0), "balance %v held %v", l.Balance(), l.Held())
	assert.GreaterOrEqual(t, l.Balance(), 0.0)
	assert.GreaterOrEqual(t, l.Held(), 0.0)
	assert.LessOrEqual(t, l.Wins(), l.Trades())
	if l.State() == Long {
		assert.Greater(t, l.Held(), 0.0)
	} else {
		assert.Greater(t, l.Balance(), 0.0)
	}
}

func TestEntryAndExit(t *testing.T) {
	l, err := New(10000)
	require.NoError(t, err)

	ev, err := l.Advance(t0, 100, true, false)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, Entry, ev.Kind)
	assert.Equal(t, Long, l.State())
	assert.InDelta(t, 100.0, l.Held(), 1e-9)
	assert.Equal(t, 0.0, l.Balance())
	assert.Equal(t, 100.0, l.EntryPrice())
	assert.Equal(t, 1, l.Trades())
	assert.InDelta(t, 10000.0, ev.Value, 1e-9)

	ev, err = l.Advance(t0.Add(time.Hour), 110, false, true)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, Exit, ev.Kind)
	assert.Equal(t, Flat, l.State())
	assert.InDelta(t, 11000.0, l.Balance(), 1e-9)
	assert.InDelta(t, 11000.0, ev.Value, 1e-9)
	assert.Equal(t, 1, l.Trades())
	assert.Equal(t, 1, l.Wins())
	assert.Equal(t, 1.0, l.WinRate())
}

func TestNoFlipInOneStep(t *testing.T) {
	l, _ := New(1000)

	// sell is irrelevant while flat
	ev, err := l.Advance(t0, 10, true, true)
	require.NoError(t, err)
	assert.Equal(t, Entry, ev.Kind)

	// buy is irrelevant while long
	ev, err = l.Advance(t0, 12, true, false)
	require.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = l.Advance(t0, 9, true, true)
	require.NoError(t, err)
	assert.Equal(t, Exit, ev.Kind)
	assert.Equal(t, 0, l.Wins())
	assert.Len(t, l.Events(), 2)
}

func TestInvalidPriceDoesNotMutate(t *testing.T) {
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		l, _ := New(1000)
		_, err := l.Advance(t0, price, true, false)
		assert.ErrorIs(t, err, ErrInvalidPrice)
		assert.Equal(t, Flat, l.State())
		assert.Equal(t, 1000.0, l.Balance())
		assert.Equal(t, 0, l.Trades())
		assert.Empty(t, l.Events())
	}

	l, _ := New(1000)
	_, _ = l.Advance(t0, 10, true, false)
	_, err := l.Liquidate(t0, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Equal(t, Long, l.State())
}

func TestLiquidate(t *testing.T) {
	l, _ := New(1000)
	ev, err := l.Liquidate(t0, 10)
	require.NoError(t, err)
	assert.Nil(t, ev)

	_, _ = l.Advance(t0, 10, true, false)
	ev, err = l.Liquidate(t0.Add(time.Hour), 12)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, ForcedExit, ev.Kind)
	assert.Equal(t, 2, l.Trades())
	assert.Equal(t, 1, l.Wins())
	assert.InDelta(t, 1200.0, l.Balance(), 1e-9)
	assert.Equal(t, 0.5, l.WinRate())
}

func TestZeroTradeWinRate(t *testing.T) {
	l, _ := New(1000)
	assert.Equal(t, 0.0, l.WinRate())
	assert.False(t, math.IsNaN(l.Snapshot(1).WinRate))
}

func TestNewRejectsNonPositiveBalance(t *testing.T) {
	for _, b := range []float64{0, -5, math.NaN()} {
		_, err := New(b)
		assert.ErrorIs(t, err, ErrInvalidBalance)
	}
}

func TestRandomWalkPreservesInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l, _ := New(10000)
	price := 100.0
	for i := 0; i < 5000; i++ {
		price = math.Max(1, price+rng.NormFloat64())
		_, err := l.Advance(t0.Add(time.Duration(i)*time.Minute), price, rng.Intn(3) == 0, rng.Intn(3) == 0)
		require.NoError(t, err)
		checkInvariants(t, l)
	}
	_, err := l.Liquidate(t0, price)
	require.NoError(t, err)
	checkInvariants(t, l)

	events := l.Events()
	for i, ev := range events {
		switch {
		case i%2 == 0:
			assert.Equal(t, Entry, ev.Kind, "event %d", i)
		case i == len(events)-1:
			assert.Contains(t, []EventKind{Exit, ForcedExit}, ev.Kind)
		default:
			assert.Equal(t, Exit, ev.Kind, "event %d", i)
		}
	}
}

func TestSnapshot(t *testing.T) {
	l, _ := New(1000)
	_, _ = l.Advance(t0, 10, true, false)
	s := l.Snapshot(11)
	assert.Equal(t, Long, s.State)
	assert.Equal(t, 10.0, s.EntryPrice)
	assert.InDelta(t, 1100.0, s.MarkValue, 1e-9)

	events := l.Events()
	events[0].Price = 999
	assert.Equal(t, 10.0, l.Events()[0].Price)
}
