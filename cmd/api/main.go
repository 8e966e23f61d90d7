package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fleetfi-backend/internal/app"
	"fleetfi-backend/internal/config"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/revenue"
	"fleetfi-backend/internal/rides"
	"fleetfi-backend/internal/scheduler"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// An invalid split is a deploy mistake; refuse to start rather than
	// record mis-split revenue.
	split := revenue.SplitConfig{
		Version:     cfg.SplitVersion,
		Investor:    cfg.SplitInvestor,
		Rider:       cfg.SplitRider,
		Management:  cfg.SplitManagement,
		Maintenance: cfg.SplitMaintenance,
	}
	if err := split.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid revenue split configuration")
	}

	fiberApp, deps, err := app.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create failed")
	}

	if deps.DB != nil {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("database handle unavailable")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		if err := database.AutoMigrate(deps.DB); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		log.Info().Msg("Postgres connected")
	}
	if deps.Rdb != nil {
		if err := deps.Rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}
	log.Info().Str("custody_mode", deps.Custody.Mode()).Msg("custody provider ready")

	// Ride event ingestion, only when a broker is configured.
	var consumer *rides.Consumer
	if cfg.AMQPURL != "" {
		consumer, err = rides.NewConsumer(*cfg, deps.Revenue)
		if err != nil {
			log.Fatal().Err(err).Msg("rides consumer init failed")
		}
		consumerCtx, cancelConsumer := context.WithCancel(context.Background())
		defer cancelConsumer()
		go func() {
			if err := consumer.Start(consumerCtx); err != nil {
				log.Error().Err(err).Msg("rides consumer stopped")
			}
		}()
	}

	// Scheduled distribution of accrued revenue, only when a cron is set.
	var sched *scheduler.Manager
	if cfg.DistributionCron != "" {
		sched, err = scheduler.NewManager(deps.DB, deps.Payouts, *cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler init failed")
		}
		if err := sched.Start(); err != nil {
			log.Fatal().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := fiberApp.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	if sched != nil {
		sched.Stop()
	}
	if consumer != nil {
		consumer.Close()
	}
	if err := fiberApp.Shutdown(); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if deps.Rdb != nil {
		_ = deps.Rdb.Close()
	}
}
