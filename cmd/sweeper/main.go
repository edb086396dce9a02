package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tour_booking/internal/adapters/observability"
	redisad "tour_booking/internal/adapters/redis"
	"tour_booking/internal/app"
	"tour_booking/internal/shared"
	mysqlrepo "tour_booking/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.SweepWorkers).
		Str("schedule", cfg.SweepSchedule).
		Msg("sweeper starting")

	if cfg.StoreDriver != shared.StoreMySQL {
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("the sweeper needs the shared mysql store")
	}
	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	inventory := app.NewInventory(repo, cache, cfg.ClaimAttempts)
	sweep := app.NewSweepService(repo, app.NewStateMachine(repo, inventory, nil), cfg.SweepWorkers, nil)

	run := func() {
		start := time.Now()
		rep, err := sweep.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sweep failed")
			return
		}
		log.Info().Int("failed", rep.Failed).Dur("took", time.Since(start)).Msg("sweep done")
	}

	if cfg.SweepSchedule == "" {
		run()
		return
	}

	clog := cron.PrintfLogger(observability.Printf{Component: "cron", Level: zerolog.WarnLevel})
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.SkipIfStillRunning(clog)))
	if _, err := c.AddFunc(cfg.SweepSchedule, run); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("invalid SWEEP_SCHEDULE")
	}
	c.Start()
	log.Info().Time("next", c.Entries()[0].Next).Msg("sweep scheduled")

	<-ctx.Done()
	log.Info().Msg("stopping sweeper")
	<-c.Stop().Done()
}
