// Package main is the entry point for the Invite2Win draw bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"invite2win/internal/bot"
	"invite2win/internal/config"
	"invite2win/internal/membership"
	"invite2win/internal/notify"
	"invite2win/internal/ops"
	"invite2win/internal/pkg/db"
	"invite2win/internal/pkg/logger"
	"invite2win/internal/repository"
	"invite2win/internal/service"
)

func main() {
	// Bootstrap logger until the configured level is known
	logger.Setup("info", "console")

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	teleBot, err := bot.NewTeleBot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	botUsername := cfg.Bot.Username
	if botUsername == "" && teleBot.Me != nil {
		botUsername = teleBot.Me.Username
	}

	oracle := membership.NewTelegramOracle(teleBot, cfg.Channel.ID, cfg.Draw.MembershipRatePerSecond)

	participantRepo := repository.NewParticipantRepository(dbPool.Pool)
	referralRepo := repository.NewReferralRepository(dbPool.Pool)
	drawRepo := repository.NewDrawRepository(dbPool.Pool)

	engine := service.NewDrawEngine(
		drawRepo,
		participantRepo,
		oracle,
		service.WithMembershipConcurrency(cfg.Draw.MembershipConcurrency),
	)
	referrals := service.NewReferralService(
		participantRepo,
		referralRepo,
		oracle,
		cfg.Draw.TicketsPerReferral,
		botUsername,
	)
	notifier := notify.NewChannelNotifier(teleBot, cfg.Channel.ID)

	scheduler := service.NewScheduler(engine, notifier, cfg.Scheduler.Interval, cfg.Draw.ResolveTimeout)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		router := ops.NewRouter(dbPool, func() string { return scheduler.State().String() })
		opsServer = ops.NewServer(cfg.Ops.Addr, router)
		opsServer.Start()
	}

	telegramBot := bot.New(teleBot, &bot.Dependencies{
		Config:    cfg,
		Referrals: referrals,
		Engine:    engine,
		Oracle:    oracle,
		Announcer: notifier,
	})
	if err := telegramBot.SetCommands(); err != nil {
		log.Warn().Err(err).Msg("Failed to set bot commands")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go telegramBot.Start()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Scheduler did not stop in time")
	}
	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Ops server shutdown failed")
		}
	}

	log.Info().Msg("Bot stopped gracefully")
}
