package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relayworks/outreach-backend/internal/app"
	"github.com/relayworks/outreach-backend/internal/config"
	"github.com/relayworks/outreach-backend/internal/db"
	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := logger.WithComponent("worker")
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

	// Run commands arrive over the broker. Without one the server process owns
	// the bus and this worker only polls the database.
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("broker connection failed")
		}
		defer amqpQueue.Close()
		if err := a.Tracker.SubscribeCommands(amqpQueue); err != nil {
			log.Fatal().Err(err).Msg("command subscription failed")
		}
	} else {
		log.Warn().Msg("no AMQP_URL set, run commands will not reach this worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	var wg sync.WaitGroup
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelCall, model.ChannelLinkedIn} {
		poller := a.Poller(ch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Reminders.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Reclaimer().Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Tracker.RunDrainSweeps(ctx, cfg.DrainSweepInterval)
	}()

	log.Info().Msg("worker running")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
}
