package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// ErrCacheMiss is returned by a CandleStore when a key is absent.
var ErrCacheMiss = errors.New("candle cache miss")

// CandleStore is the byte-level key/value store behind CachedProvider.
type CandleStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore implements CandleStore on Redis.
type RedisStore struct {
	client *goredis.Client
}

// RedisConfig configures the Redis candle store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("redis candle cache connected")
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// CachedProvider is a read-through cache in front of another Provider.
// Store failures are logged and fall through to the upstream provider.
type CachedProvider struct {
	Upstream Provider
	Store    CandleStore
	TTL      time.Duration
	Now      func() time.Time
}

// NewCachedProvider wraps upstream with store.
func NewCachedProvider(upstream Provider, store CandleStore, ttl time.Duration) *CachedProvider {
	return &CachedProvider{Upstream: upstream, Store: store, TTL: ttl, Now: time.Now}
}

func (c *CachedProvider) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) (Series, error) {
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	key := cacheKey(symbol, timeframe, Align(start, step), Align(end, step))

	if b, err := c.Store.Get(ctx, key); err == nil {
		var cached Series
		if err := json.Unmarshal(b, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cached candles")
	} else if !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("candle cache read failed")
	}

	series, err := c.Upstream.FetchCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}

	if ttl := c.ttlFor(end, step); ttl > 0 {
		if b, err := json.Marshal(series); err == nil {
			if err := c.Store.Set(ctx, key, b, ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("candle cache write failed")
			}
		}
	}
	return series, nil
}

// ttlFor caps the TTL at the next bar boundary when the range reaches the
// still-forming bar, whose close keeps changing until then.
func (c *CachedProvider) ttlFor(end time.Time, step time.Duration) time.Duration {
	ttl := c.TTL
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	current := Align(now(), step)
	if !end.Before(current) {
		if untilNext := current.Add(step).Sub(now()); untilNext < ttl {
			ttl = untilNext
		}
	}
	return ttl
}

func cacheKey(symbol, timeframe string, start, end time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d:%d", strings.ToUpper(symbol), timeframe, start.Unix(), end.Unix())
}
