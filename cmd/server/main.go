package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relayworks/outreach-backend/internal/app"
	"github.com/relayworks/outreach-backend/internal/config"
	"github.com/relayworks/outreach-backend/internal/controller"
	"github.com/relayworks/outreach-backend/internal/db"
	"github.com/relayworks/outreach-backend/internal/handler"
	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := logger.WithComponent("server")
	metrics.Register()

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	a, err := app.Build(cfg, conn)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}

	var bus queue.Queue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("broker connection failed")
		}
		defer amqpQueue.Close()
		bus = amqpQueue
	} else {
		// Single-process mode: no broker means the worker loops live here too,
		// so run commands must be consumed in-process.
		log.Warn().Msg("no AMQP_URL set, using in-process run command bus")
		inMem := queue.NewInMemoryQueue()
		if err := a.Tracker.SubscribeCommands(inMem); err != nil {
			log.Fatal().Err(err).Msg("command subscription failed")
		}
		bus = inMem
	}

	runController := &controller.RunController{
		Tracker:  a.Tracker,
		Throttle: a.Throttle,
		Bus:      bus,
	}
	webhookHandler := &handler.WebhookHandler{
		Inbound:        a.Inbound,
		EmailSecret:    cfg.EmailWebhookSecret,
		CallSecret:     cfg.CallWebhookSecret,
		LinkedInSecret: cfg.LinkedInWebhookSecret,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())
	runController.Routes(r)
	webhookHandler.Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}
