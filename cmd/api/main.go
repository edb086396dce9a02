package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "tour_booking/internal/adapters/http_server"
	"tour_booking/internal/adapters/observability"
	redisad "tour_booking/internal/adapters/redis"
	"tour_booking/internal/adapters/webhook"
	"tour_booking/internal/app"
	"tour_booking/internal/domain"
	"tour_booking/internal/shared"
	"tour_booking/internal/storage/memory"
	mysqlrepo "tour_booking/internal/storage/mysql"
)

// store is everything the services need from the persistence layer.
type store interface {
	domain.TourStore
	domain.BookingStore
	domain.ReviewStore
}

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	st, seed := openStore(cfg)
	if cfg.SeedFile != "" {
		tours, err := shared.LoadTours(cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("tour seed failed")
		}
		for _, t := range tours {
			if err := seed(ctx, t); err != nil {
				log.Fatal().Err(err).Str("tour_id", t.ID).Msg("tour seed failed")
			}
		}
		log.Info().Int("tours", len(tours)).Msg("tours seeded")
	}

	// deps
	rdb := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	cache := redisad.NewWithClient(rdb)
	events := app.FanoutPublisher{redisad.NewPublisher(rdb, cfg.EventsChannel)}
	if cfg.EventsWebhookURL != "" {
		hook, err := webhook.New(cfg.EventsWebhookURL, cfg.EventsWebhookRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize webhook publisher")
		}
		events = append(events, hook)
	}

	inventory := app.NewInventory(st, cache, cfg.ClaimAttempts)
	machine := app.NewStateMachine(st, inventory, nil)
	ratings := app.NewRatingAggregator(st, cache, cfg.RatingAttempts)

	h := &server.Handlers{
		Tours:    app.NewTourQueryService(st, cache, cfg.CacheTTL),
		Bookings: app.NewBookingService(st, st, inventory, machine, events, nil).WithEventTimeout(cfg.EventsTimeout),
		Reviews:  app.NewReviewService(st, st, ratings, nil),
	}

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-stop.Done()
		shutdown, done := context.WithTimeout(context.Background(), 20*time.Second)
		defer done()
		if err := httpSrv.Shutdown(shutdown); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	// events of requests that already returned are still in flight
	h.Bookings.Drain()
	log.Info().Msg("API stopped")
}

func openStore(cfg shared.Config) (store, func(context.Context, domain.Tour) error) {
	if cfg.StoreDriver == shared.StoreMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		mem := memory.New()
		return mem, func(_ context.Context, t domain.Tour) error { mem.PutTour(t); return nil }
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	repo := mysqlrepo.New(db)
	return repo, repo.UpsertTour
}
