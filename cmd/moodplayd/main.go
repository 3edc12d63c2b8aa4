// Package main provides the moodplayd entry point: wires the Catalog
// and Features clients, the cache, the Token Manager, the candidate
// generators, and the Orchestrator, then runs the background tasks
// and an HTTP server exposing the recommendation workflow.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/osa030/moodplay/internal/app/anchor"
	"github.com/osa030/moodplay/internal/app/background"
	moodengine "github.com/osa030/moodplay/internal/app/mood"
	"github.com/osa030/moodplay/internal/app/orchestrator"
	"github.com/osa030/moodplay/internal/app/seed"
	"github.com/osa030/moodplay/internal/app/strategy"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/config"
	"github.com/osa030/moodplay/internal/infra/features"
	"github.com/osa030/moodplay/internal/infra/guardrails"
	"github.com/osa030/moodplay/internal/infra/httpx"
	"github.com/osa030/moodplay/internal/infra/llm"
	"github.com/osa030/moodplay/internal/infra/logger"
	"github.com/osa030/moodplay/internal/infra/registry"
	"github.com/osa030/moodplay/internal/infra/token"
)

var (
	configPath string
	verbose    bool
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "moodplayd",
		Short: "Mood-based playlist recommendation engine daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/server.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) logging")

	root.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return start(context.Background())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func start(ctx context.Context) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Output: "stdout", Level: level}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	zlog.Info().Msgf("loading config from %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, err := wire(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}

	deps.background.WarmPopularMoods()

	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("received shutdown signal")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := deps.background.Stop(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("background tasks did not stop cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("failed to shutdown server")
	}
	zlog.Info().Msg("moodplayd stopped")
	return nil
}

// dependencies bundles every wired component registerRoutes and the
// background manager need.
type dependencies struct {
	orchestrator *orchestrator.Orchestrator
	background   *background.Manager
}

func wire(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	var backend cache.Backend = cache.NewMemory(cfg.Cache.MemoryMaxSize)
	if cfg.Cache.Backend == "redis" {
		redisBackend, err := cache.NewRedis(cache.RedisConfig{URL: cfg.Cache.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		backend = redisBackend
	}
	cacheManager := cache.NewManager(backend, cfg.Cache.KeyPrefix)

	catalogClient, err := catalog.New(ctx, catalog.Config{
		ClientID:     cfg.Catalog.ClientID,
		ClientSecret: cfg.Catalog.ClientSecret,
		RefreshToken: cfg.Catalog.RefreshToken,
		Market:       cfg.Catalog.Market,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}

	featuresRL := cfg.RateLimitFor("features")
	featuresClient, err := features.New(features.Config{
		BaseURL:            cfg.Features.BaseURL,
		APIKey:             cfg.Features.APIKey,
		UseGlobalSemaphore: cfg.Features.UseGlobalSemaphore,
		UseCircuitBreaker:  cfg.Features.UseCircuitBreaker,
	}, httpx.Config{
		Timeout:            cfg.FeaturesTimeout(),
		MaxRetries:         featuresRL.MaxRetries,
		RequestsPerMinute:  featuresRL.RequestsPerMinute,
		MinRequestInterval: time.Duration(featuresRL.MinRequestMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create features client: %w", err)
	}

	var llmClient llm.Client
	if cfg.LLM.Provider == "stub" {
		llmClient = llm.NewStub("")
	}

	reg := registry.New(cacheManager)
	gr := guardrails.New(cacheManager)

	tokenStore := token.NewCacheStore(cacheManager)
	tokenExchanger := token.NewOAuth2Exchanger(cfg.Catalog.ClientID, cfg.Catalog.ClientSecret)
	tokenManager := token.New(tokenStore, tokenExchanger)

	moodEngine := moodengine.New(llmClient)
	anchorSelector := anchor.New(catalogClient, orchestrator.NewRegistryFeatureScorer(reg, featuresClient), llmClient, cacheManager)
	seedGatherer := seed.New(catalogClient, featuresClient, reg, cacheManager, seed.NoopProgress{})

	chain := strategy.NewChain(
		strategy.NewUserAnchorGenerator(catalogClient),
		strategy.NewArtistDiscoveryGenerator(catalogClient, featuresClient, cacheManager),
		strategy.NewSeedBasedGenerator(featuresClient, gr),
		strategy.NewFallbackGenerator(catalogClient, featuresClient, reg),
	)

	progress := background.NewCacheProgressNotifier(cacheManager)
	orch := orchestrator.New(moodEngine, anchorSelector, seedGatherer, chain, catalogClient, tokenManager, progress, cfg.Orchestrator)

	bg := background.New(orch, cacheManager, catalogClient, featuresClient)

	return &dependencies{orchestrator: orch, background: bg}, nil
}
