package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	"github.com/wrale/wrale-adplay/internal/wadplayd/config"
	"github.com/wrale/wrale-adplay/internal/wadplayd/database"
	"github.com/wrale/wrale-adplay/internal/wadplayd/exchange"
	"github.com/wrale/wrale-adplay/internal/wadplayd/host"
	"github.com/wrale/wrale-adplay/internal/wadplayd/identity"
	identityredis "github.com/wrale/wrale-adplay/internal/wadplayd/identity/redis"
	"github.com/wrale/wrale-adplay/internal/wadplayd/journal"
	journalpg "github.com/wrale/wrale-adplay/internal/wadplayd/journal/postgres"
	"github.com/wrale/wrale-adplay/internal/wadplayd/lifecycle"
	"github.com/wrale/wrale-adplay/internal/wadplayd/logging"
	"github.com/wrale/wrale-adplay/internal/wadplayd/media"
	"github.com/wrale/wrale-adplay/internal/wadplayd/metrics"
	"github.com/wrale/wrale-adplay/internal/wadplayd/migrations"
	"github.com/wrale/wrale-adplay/internal/wadplayd/playback"
	"github.com/wrale/wrale-adplay/internal/wadplayd/tracking"
)

const (
	shutdownTimeout = 30 * time.Second
	connectAttempts = 5
	connectDelay    = time.Second
)

// run assembles the runtime and serves the host API until ctx is done
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	m := metrics.New()

	store, closeStore, err := openIdentityStore(ctx, cfg.Identity.Redis, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	j, closeJournal, err := openJournal(ctx, cfg.Journal, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	transport := newTransport()

	ex, err := exchange.NewClient(cfg.Exchange.BaseURL,
		exchange.WithHTTPClient(&http.Client{Transport: transport}),
		exchange.WithToken(cfg.Exchange.Token),
		exchange.WithTimeout(cfg.Exchange.Timeout),
		exchange.WithRetryPolicy(exchange.RetryPolicy{
			MaxAttempts: cfg.Exchange.MaxAttempts,
			BaseDelay:   cfg.Exchange.RetryBaseDelay,
			MaxDelay:    cfg.Exchange.RetryMaxDelay,
		}),
		exchange.WithLogger(logger),
		exchange.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create exchange client: %w", err)
	}

	firer := tracking.NewFirer(cfg.Tracking.Timeout, logger,
		tracking.WithHTTPClient(&http.Client{Transport: transport}),
		tracking.WithMetrics(m),
	)
	defer firer.Wait()

	props := host.NewProperties()
	resolver := identity.NewResolver(props, store, logger)

	hub := host.NewHub(logger)
	go hub.Run(ctx)

	orchestrator := lifecycle.NewOrchestrator(resolver, ex,
		newPlayerFactory(cfg.Player, props, &http.Client{Transport: transport}, firer, ex, logger, m),
		lifecycle.Config{
			MinPriceCents: cfg.Exchange.MinPriceCents,
			Format:        exchange.Format(cfg.Exchange.Format),
			MaxLifecycle:  cfg.Player.MaxLifecycle,
		},
		logger,
		lifecycle.WithJournal(j),
		lifecycle.WithMetrics(m),
		lifecycle.WithStatusListener(hub.Publish),
	)

	handler := host.NewHandler(ctx, orchestrator, j, props, hub, host.Options{
		QueryParam:     cfg.Identity.QueryParam,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("starting host API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if cfg.Player.CycleInterval > 0 {
		go autoCycle(ctx, orchestrator, cfg.Player.CycleInterval, logging.Component(logger, "scheduler"))
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	logger.Info().Msg("server stopped")
	return nil
}

// newPlayerFactory gives every cycle its own media element and engine
func newPlayerFactory(cfg config.PlayerConfig, props *host.Properties, mediaClient *http.Client, tracker playback.Tracker, confirmer playback.Confirmer, logger zerolog.Logger, m *metrics.Metrics) lifecycle.PlayerFactory {
	return func(lc *lifecycle.LifecycleContext) lifecycle.Player {
		info := v1alpha1.PlayerInfo{
			Name:     cfg.PlayerName,
			Version:  cfg.PlayerVersion,
			ScreenID: lc.Identity().ID,
		}
		if res := props.Get().Resolution; res != nil {
			info.Resolution = *res
		}

		element := media.NewElement(mediaClient, cfg.InitialBurstBytes, cfg.ProgressInterval, logger)
		return playback.NewEngine(element, tracker, confirmer, playback.Config{
			PreloadTimeout:       cfg.PreloadTimeout,
			DefaultImageDuration: cfg.DefaultImageDuration,
			StallTimeout:         cfg.StallTimeout,
			ProgressInterval:     cfg.ProgressInterval,
			MimePreferences:      cfg.MimePreferences,
			Player:               info,
		}, logger, m)
	}
}

// newTransport is shared by the exchange, beacon and media clients
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 64
	t.MaxIdleConnsPerHost = 8
	t.IdleConnTimeout = 90 * time.Second
	return t
}

func openIdentityStore(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (identity.Store, func(), error) {
	if cfg.Addr == "" {
		logger.Info().Msg("persisting identity in memory")
		return identity.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to reach identity store at %s: %w", cfg.Addr, err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("persisting identity in redis")
	return identityredis.NewStore(client, cfg.Key, cfg.TTL), func() { client.Close() }, nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig, logger zerolog.Logger) (journal.Journal, func(), error) {
	if cfg.DSN == "" {
		logger.Info().Int("size", cfg.MemorySize).Msg("keeping playout journal in memory")
		return journal.NewMemory(cfg.MemorySize), func() {}, nil
	}

	db, err := database.SetupDatabase(ctx, "postgres", cfg.DSN, cfg.MaxOpenConns, connectAttempts, connectDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup journal database: %w", err)
	}

	if err := migrations.NewManager(db, logger).ApplyMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return journalpg.NewRepository(db, logger), closeDB(db, logger), nil
}

func closeDB(db *sql.DB, logger zerolog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close journal database")
		}
	}
}

// cycleRunner runs one cycle to completion
type cycleRunner interface {
	RunCycle(ctx context.Context) lifecycle.Outcome
}

// autoCycle starts a cycle every interval when the host does not drive cycles itself
func autoCycle(ctx context.Context, r cycleRunner, interval time.Duration, logger zerolog.Logger) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		out := r.RunCycle(ctx)
		if errors.Is(out.Err, lifecycle.ErrCycleInProgress) {
			logger.Debug().Msg("cycle already running, skipping tick")
		} else {
			logger.Debug().
				Str("cycle", out.CycleID.String()).
				Str("result", out.Result).
				Msg("scheduled cycle finished")
		}
		timer.Reset(interval)
	}
}
