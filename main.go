package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"backtest-core/internal/api"
	"backtest-core/internal/engine"
	"backtest-core/internal/events"
	"backtest-core/internal/live"
	"backtest-core/internal/market"
	"backtest-core/internal/monitor"
	"backtest-core/internal/persistence"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/config"
	"backtest-core/pkg/db"
	"backtest-core/pkg/i18n"
	"backtest-core/pkg/logger"
)

var buildVersion = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init("backtest-core", cfg.LogLevel, cfg.LogPretty)
	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Info().Str("version", buildVersion).Msg(i18n.M().Starting)
	log.Info().Msgf(i18n.M().ConfigLoaded, cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	log.Info().Msgf(i18n.M().UsingDBPath, cfg.DBPath)
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Msgf(i18n.M().DBInitFailed, err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Msgf(i18n.M().DBMigrationsFailed, err)
	}

	// Market data
	provider, closeProvider := buildProvider(cfg)
	defer closeProvider()

	// Strategy presets
	presets, err := strategy.LoadPresetsOrDefault(cfg.PresetsPath)
	if err != nil {
		log.Fatal().Msgf(i18n.M().PresetsLoadFailed, err)
	}
	log.Info().Msgf(i18n.M().PresetsLoaded, len(presets))

	// Events, metrics, journal
	bus := events.NewBus()
	metrics := monitor.NewMetrics()
	writer := persistence.NewBatchWriter(database.DB, 50, 500*time.Millisecond)
	(&persistence.TradeJournal{Bus: bus, Writer: writer}).Start(ctx)
	(&monitor.Monitor{Bus: bus, Metrics: metrics, Pending: writer.Pending}).Start(ctx)

	svc := engine.NewImpl(engine.Config{
		Provider: provider,
		Live: live.NewManager(provider, live.Options{
			InitialBalance: cfg.InitialBalance,
			WindowBars:     cfg.LiveWindowBars,
		}),
		Presets:         strategy.NewPresetBook(presets),
		Bus:             bus,
		DB:              database,
		Metrics:         metrics,
		InitialBalance:  cfg.InitialBalance,
		MaxLookbackDays: cfg.BacktestMaxDays,
		Meta: engine.SystemStatus{
			Version:     buildVersion,
			UseMockFeed: cfg.UseMockFeed,
			CandleCache: cfg.RedisAddr != "",
		},
	})
	log.Info().Msg(i18n.M().EngineServiceInit)

	if cfg.HistoryRetention > 0 {
		go pruneHistory(ctx, database, cfg.HistoryRetention)
	}

	// API
	if cfg.APIJWTSecret != "" {
		log.Info().Msg(i18n.M().AuthEnabled)
	}
	server := api.NewServer(svc, bus, metrics, api.Options{
		JWTSecret:      cfg.APIJWTSecret,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Msgf(i18n.M().ServerListening, cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Msgf(i18n.M().APIServerError, err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg(i18n.M().ShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := writer.Close(); err != nil {
		log.Warn().Err(err).Msg("journal flush")
	}
	log.Info().Msg(i18n.M().ShutdownComplete)
}

// buildProvider selects the candle source and wraps it with the Redis
// cache when configured.
func buildProvider(cfg *config.Config) (market.Provider, func()) {
	var provider market.Provider
	if cfg.UseMockFeed {
		provider = market.NewMockProvider()
		log.Info().Msg(i18n.M().MockFeedStarted)
	} else {
		provider = market.NewBinanceProvider(cfg.BinanceTestnet, cfg.BinanceRequestsPerSec)
		log.Info().Msgf(i18n.M().BinanceFeedStarted, cfg.BinanceTestnet)
	}

	if cfg.RedisAddr == "" {
		return provider, func() {}
	}
	store, err := market.NewRedisStore(market.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Msgf(i18n.M().CandleCacheFailed, err)
		return provider, func() {}
	}
	log.Info().Msgf(i18n.M().CandleCacheEnabled, cfg.RedisAddr, cfg.CandleCacheTTL)
	return market.NewCachedProvider(provider, store, cfg.CandleCacheTTL), func() { _ = store.Close() }
}

func pruneHistory(ctx context.Context, database *db.Database, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := database.PruneBacktestRuns(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn().Err(err).Msg("prune backtest history")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("pruned backtest history")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
