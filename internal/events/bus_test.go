package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventTradeExecuted, 1)

	b.Publish(EventTradeExecuted, TradeExecuted{Symbol: "BTCUSDT"})
	got := <-ch
	assert.Equal(t, "BTCUSDT", got.(TradeExecuted).Symbol)

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)

	// publishing without subscribers never blocks
	b.Publish(EventTradeExecuted, TradeExecuted{})
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventLivePolled, 1)
	defer unsub()

	b.Publish(EventLivePolled, 1)
	b.Publish(EventLivePolled, 2)
	assert.Equal(t, 1, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected payload %v", v)
	default:
	}
}

func TestSubscribeMany(t *testing.T) {
	b := NewBus()
	ch, unsub := b.SubscribeMany(All, 8)

	b.Publish(EventBacktestCompleted, BacktestCompleted{RunID: "r1"})
	b.Publish(EventTradeExecuted, TradeExecuted{Symbol: "ETHUSDT"})

	seen := map[Event]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			seen[msg.Event] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.True(t, seen[EventBacktestCompleted])
	assert.True(t, seen[EventTradeExecuted])

	unsub()
	_, open := <-ch
	require.False(t, open)
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Publish(EventLivePolled, nil) })
}
