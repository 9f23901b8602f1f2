package binance

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// WeightTracker tracks the request weight Binance reports per window.
type WeightTracker struct {
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	mu            sync.RWMutex
}

// NewWeightTracker creates a tracker.
// limit: maximum weight allowed per window (6000/min for spot market data).
func NewWeightTracker(limit int, resetInterval time.Duration) *WeightTracker {
	return &WeightTracker{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// UpdateFromHeader records the used weight from the X-MBX-USED-WEIGHT-1M header.
func (w *WeightTracker) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReset) >= w.resetInterval {
		w.lastReset = time.Now()
	}
	w.usedWeight = weight

	pct := float64(w.usedWeight) / float64(w.limit) * 100
	if pct >= 95 {
		log.Error().Int("used", w.usedWeight).Int("limit", w.limit).Msgf("binance weight critical (%.1f%%)", pct)
	} else if pct >= 80 {
		log.Warn().Int("used", w.usedWeight).Int("limit", w.limit).Msgf("binance weight high (%.1f%%)", pct)
	}
}

// Usage returns current usage information.
func (w *WeightTracker) Usage() (used int, limit int, percentage float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if time.Since(w.lastReset) >= w.resetInterval {
		return 0, w.limit, 0
	}
	return w.usedWeight, w.limit, float64(w.usedWeight) / float64(w.limit) * 100
}

// ShouldDelay reports whether callers should back off before the next request.
func (w *WeightTracker) ShouldDelay() bool {
	_, _, pct := w.Usage()
	return pct >= 90
}
