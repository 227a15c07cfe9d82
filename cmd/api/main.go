package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lmoreno/stockblock/internal/app"
	"github.com/lmoreno/stockblock/internal/clock"
	"github.com/lmoreno/stockblock/internal/config"
	"github.com/lmoreno/stockblock/internal/messaging"
	"github.com/lmoreno/stockblock/internal/storage/postgres"
	transporthttp "github.com/lmoreno/stockblock/internal/transport/http"
	"github.com/lmoreno/stockblock/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	logger := log.Logger

	cfg := config.Load()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	events := app.NopPublisher()
	if cfg.RabbitURL != "" {
		pub, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, block events disabled")
		} else {
			defer pub.Close()
			events = pub
			logger.Info().Str("exchange", cfg.RabbitExchange).Msg("publishing block events")
		}
	}

	skuRepo := postgres.NewSkuRepository(pool)
	skuSvc := app.NewSkuService(skuRepo, clock.NewSystem())
	blockRepo := postgres.NewBlockRepository(pool)
	blockSvc := app.NewBlockService(blockRepo, clock.NewSystem(), events)

	sweeper := app.NewSweeper(blockRepo, clock.NewSystem(), events, cfg.SweepInterval, logger)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper.Sweep(startupCtx)
	go sweeper.Run(sweepCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", transporthttp.HealthHandler)
	mux.Handle("/api/sku", transporthttp.HandleCreateSku(skuSvc))
	mux.Handle("/api/sku/", transporthttp.HandleCreateBlock(blockSvc))
	mux.Handle("/api/temporary-blocks", transporthttp.HandleListBlocks(blockSvc))
	mux.Handle("/api/temporary-blocks/", transporthttp.HandleBlockTransition(blockSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info().Str("port", cfg.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}
