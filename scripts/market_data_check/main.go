package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"backtest-core/internal/market"
	"backtest-core/pkg/config"
	"backtest-core/pkg/logger"
	"backtest-core/pkg/market/binance"
)

// market_data_check/main.go
//
// Quick check that the Binance kline endpoint is reachable and that the
// provider returns a clean series.
//
//	go run ./scripts/market_data_check
//
// CHECK_SYMBOL    (default "BTCUSDT")
// CHECK_TIMEFRAME (default "1h")
// CHECK_DAYS      (default "3")
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	logger.Init("market-data-check", "debug", true)

	symbol := getenv("CHECK_SYMBOL", "BTCUSDT")
	timeframe := getenv("CHECK_TIMEFRAME", "1h")
	days, err := strconv.Atoi(getenv("CHECK_DAYS", "3"))
	if err != nil || days <= 0 {
		log.Fatal().Str("value", os.Getenv("CHECK_DAYS")).Msg("CHECK_DAYS must be a positive integer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := binance.NewClient(cfg.BinanceTestnet, cfg.BinanceRequestsPerSec)
	serverTime, err := client.ServerTime(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("server time")
	}
	log.Info().Time("server_time", time.UnixMilli(serverTime)).Msg("binance reachable")

	end := time.Now()
	series, err := market.NewBinanceProviderWithClient(client).FetchCandles(ctx, symbol, timeframe, end.AddDate(0, 0, -days), end)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch candles")
	}
	first, last := series[0], series[len(series)-1]
	used, limit, pct := client.Weight().Usage()
	log.Info().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(series)).
		Time("first", first.Time).
		Time("last", last.Time).
		Float64("last_close", last.Close).
		Int("used_weight", used).
		Int("weight_limit", limit).
		Float64("weight_pct", pct).
		Msg("candles ok")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
