// Package main is the entry point for the promo code bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"promo-code-bot/internal/bot"
	"promo-code-bot/internal/config"
	"promo-code-bot/internal/pkg/db"
	"promo-code-bot/internal/pkg/lock"
	"promo-code-bot/internal/repository"
	"promo-code-bot/internal/server"
	"promo-code-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	participantRepo := repository.NewParticipantRepository(dbPool.Pool)
	codeRepo := repository.NewCodeRepository(dbPool.Pool)
	winnerRepo := repository.NewWinnerRepository(dbPool.Pool)
	prizeRepo := repository.NewPrizeRepository(dbPool.Pool)
	usageRepo := repository.NewUsageLogRepository(dbPool.Pool)

	// Initialize services
	accountService := service.NewAccountService(participantRepo)
	catalogService := service.NewCatalogService(prizeRepo)
	redemptionService := service.NewRedemptionService(
		codeRepo,
		winnerRepo,
		catalogService,
		usageRepo,
		cfg.Redemption.CodeLimitPerUser,
	)
	ingestionService := service.NewIngestionService(
		codeRepo,
		winnerRepo,
		catalogService,
		cfg.Ingestion.BatchSize,
	)
	overviewService := service.NewOverviewService(codeRepo, participantRepo)

	userLock := lock.NewUserLock()

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:            cfg,
		AccountService:    accountService,
		RedemptionService: redemptionService,
		IngestionService:  ingestionService,
		UserLock:          userLock,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Start the dashboard server when enabled
	var dashboard *server.Server
	if cfg.Server.Enabled {
		dashboard = server.New(
			&cfg.Server,
			overviewService,
			catalogService,
			codeRepo,
			winnerRepo,
			usageRepo,
		)
		go func() {
			if err := dashboard.Start(); err != nil {
				log.Error().Err(err).Msg("Dashboard server failed")
			}
		}()
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	if dashboard != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := dashboard.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Dashboard shutdown failed")
		}
	}
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create participants table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS participants (
			telegram_id BIGINT PRIMARY KEY,
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			tg_first_name VARCHAR(255) NOT NULL DEFAULT '',
			tg_last_name VARCHAR(255) NOT NULL DEFAULT '',
			phone_number VARCHAR(32) NOT NULL DEFAULT '',
			lang VARCHAR(8) NOT NULL DEFAULT 'uz',
			last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: participants table created")

	// Migration 2: Create prizes table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS prizes (
			id BIGSERIAL PRIMARY KEY,
			seq_id BIGINT NOT NULL,
			tier VARCHAR(32) NOT NULL,
			name VARCHAR(255) NOT NULL,
			images JSONB NOT NULL DEFAULT '{}',
			total_issued BIGINT NOT NULL DEFAULT 0,
			total_claimed BIGINT NOT NULL DEFAULT 0,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_prizes_tier_live
			ON prizes(tier) WHERE deleted_at IS NULL;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: prizes table created")

	// Migration 3: Create codes table. The partial unique index is the
	// single uniqueness point for live canonical keys.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS codes (
			id BIGSERIAL PRIMARY KEY,
			seq_id BIGINT NOT NULL,
			canonical_key VARCHAR(64) NOT NULL,
			value VARCHAR(64) NOT NULL,
			prize_id BIGINT REFERENCES prizes(id),
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_at TIMESTAMPTZ,
			claimed_by BIGINT,
			month VARCHAR(16),
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_codes_key_live
			ON codes(canonical_key) WHERE deleted_at IS NULL;
		CREATE INDEX IF NOT EXISTS idx_codes_claimed_at ON codes(claimed_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: codes table created")

	// Migration 4: Create winner_codes table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS winner_codes (
			id BIGSERIAL PRIMARY KEY,
			seq_id BIGINT NOT NULL,
			canonical_key VARCHAR(64) NOT NULL,
			value VARCHAR(64) NOT NULL,
			tier VARCHAR(32) NOT NULL,
			prize_id BIGINT NOT NULL REFERENCES prizes(id),
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_at TIMESTAMPTZ,
			claimed_by BIGINT,
			month VARCHAR(16),
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_winner_codes_key_live
			ON winner_codes(canonical_key) WHERE deleted_at IS NULL;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: winner_codes table created")

	// Migration 5: Create usage_log table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_log (
			id BIGSERIAL PRIMARY KEY,
			participant_id BIGINT NOT NULL,
			submitted_text VARCHAR(255) NOT NULL,
			code_id BIGINT,
			winner_code_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_usage_log_participant
			ON usage_log(participant_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: usage_log table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
