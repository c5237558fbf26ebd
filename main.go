package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dropscout/config"
	"dropscout/internal/browser"
	"dropscout/internal/notify"
	"dropscout/internal/scraper"
	"dropscout/internal/store"
	"dropscout/logger"
	"dropscout/services/cache"
	"dropscout/services/publisher"
	"dropscout/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	scope := flag.String("scope", "full", "pipeline scope: full, harvest or search")
	query := flag.String("query", "", "search query (required for -scope search)")
	flag.Parse()

	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("scope", *scope).
		Dur("harvest_interval", cfg.HarvestInterval).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	factory := browser.NewChromeFactory(cfg.Headless, logger.ForBrowser())
	defer factory.Close()
	cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	harvester := scraper.NewHarvester(
		factory,
		browser.NewGate(cacheService, "rate_limited:idealo", cfg.BlockTime),
		scraper.HarvestConfig{
			StartURL:     cfg.HarvestURL,
			MaxPages:     cfg.MaxPages,
			AttemptDelay: cfg.AttemptDelay,
		},
	)
	searcher := scraper.NewOrchestrator(
		factory,
		browser.NewGate(cacheService, "rate_limited:ebay", cfg.BlockTime),
		scraper.SearchConfig{
			MaxBestMatchItems:  cfg.MaxBestMatchItems,
			MaxLeastMatchItems: cfg.MaxLeastMatchItems,
			MinPriceFilter:     cfg.MinPriceFilter,
			AttemptDelay:       cfg.AttemptDelay,
		},
	)

	switch *scope {
	case "harvest":
		runHarvestOnly(ctx, harvester, log)
		return
	case "search":
		runSearchOnly(ctx, searcher, *query, log)
		return
	case "full":
	default:
		log.Fatal().Str("scope", *scope).Msg("Unknown scope")
	}

	catalog, err := store.Open(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open catalog store")
	}
	defer catalog.Close()

	redisPublisher := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	defer redisPublisher.Close()
	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	notifier := notify.NewNotifier(
		notify.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID),
		cfg.TelegramConfigured(),
	)

	w := worker.NewWorker(
		ctx,
		harvester,
		searcher,
		catalog,
		notifier,
		redisPublisher,
		worker.Config{
			Interval:        cfg.HarvestInterval,
			ThresholdDays:   cfg.StalenessThresholdDays,
			MinMargin:       cfg.MinProfitMargin,
			MaxWorkers:      cfg.ComparisonWorkers,
			RateLimit:       cfg.ComparisonRateLimit(),
			PublishEntities: true,
		},
	)

	// Start worker in a goroutine
	workerDone := make(chan struct{})
	go func() {
		log.Info().Msg("Starting pipeline worker")
		w.Start()
		close(workerDone)
	}()

	// Wait for shutdown signal or worker exit
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case <-workerDone:
		log.Info().Msg("Worker exited")
	}

	log.Info().Msg("Shutting down gracefully...")
}

// runHarvestOnly walks the primary marketplace once and prints what it
// found, skipping persistence. Useful for validating selectors.
func runHarvestOnly(ctx context.Context, harvester *scraper.Harvester, log *logger.Logger) {
	entities, stats, err := harvester.Harvest(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Harvest failed")
	}
	for _, e := range entities {
		fmt.Printf("%s | €%s | %s\n", e.Name, e.Price.StringFixed(2), e.SourceURL)
	}
	log.Info().
		Int("pages", stats.Pages).
		Int("extracted", stats.Extracted).
		Int("skipped", stats.Skipped).
		Msg("Harvest-only run complete")
}

// runSearchOnly runs one comparison query and prints the tiers.
func runSearchOnly(ctx context.Context, searcher *scraper.Orchestrator, query string, log *logger.Logger) {
	if query == "" {
		log.Fatal().Msg("-query is required with -scope search")
	}
	result, err := searcher.Search(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Str("query", query).Msg("Search failed")
	}
	for _, l := range result.BestMatches {
		fmt.Printf("[best] %s | €%s | %s\n", l.Title, l.Price.StringFixed(2), l.SourceURL)
	}
	for _, l := range result.LessRelevant {
		fmt.Printf("[less] %s | €%s | %s\n", l.Title, l.Price.StringFixed(2), l.SourceURL)
	}
	log.Info().
		Str("query", query).
		Int("best", len(result.BestMatches)).
		Int("less_relevant", len(result.LessRelevant)).
		Msg("Search-only run complete")
}
