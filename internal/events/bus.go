// Package events is the in-process pub/sub bus connecting the engine to
// metrics, the trade journal and websocket clients.
package events

import (
	"sync"
)

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event and returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[e]
			for i, c := range subs {
				if c == ch {
					close(c)
					b.subs[e] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}

	return ch, unsub
}

// Message pairs a payload with its topic.
type Message struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload"`
}

// SubscribeMany merges several topics into one channel. The returned
// function unsubscribes every topic and closes the merged channel.
func (b *Bus) SubscribeMany(topics []Event, buffer int) (<-chan Message, func()) {
	out := make(chan Message, buffer)
	var (
		wg     sync.WaitGroup
		unsubs []func()
	)
	for _, e := range topics {
		ch, unsub := b.Subscribe(e, buffer)
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func(e Event, ch <-chan any) {
			defer wg.Done()
			for payload := range ch {
				select {
				case out <- Message{Event: e, Payload: payload}:
				default:
				}
			}
		}(e, ch)
	}

	var once sync.Once
	return out, func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
			wg.Wait()
			close(out)
		})
	}
}

// Publish fan-outs the payload to subscribers asynchronously to avoid blocking.
func (b *Bus) Publish(e Event, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
