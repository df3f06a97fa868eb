/*
The marketstream server hosts the real-time market-data ingestion pipeline
behind an HTTP control plane and a WebSocket event channel.

It consumes an aggregated-trade stream from the exchange, validates sequence
continuity, conflates trades into candles and signed-delta candles on a
configurable timeframe, and emits compacted frames to connected shells at a
bounded cadence. Historical candles bootstrap over REST, with paginated
full-history loading and progress events.

Usage:

	go run ./cmd/server -addr=:8880 -db=marketstream.db

Commands are JSON over HTTP (start/stop/status/symbols plus the preferences
and drawings store); events stream over /api/market/events. A gRPC health
server runs alongside for infra probes.
*/
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"marketstream/internal/cache"
	"marketstream/internal/config"
	"marketstream/internal/pipeline"
	"marketstream/internal/repository"
	"marketstream/internal/server"
	"marketstream/internal/service"
)

const (
	productName = "marketstream"
	version     = "0.1.0"
)

var (
	configPath = flag.String("config", "", "path to YAML config file")
	addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := repository.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
	}
	defer db.Close()

	symbolsCache := cache.NewSymbolsCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	defer symbolsCache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := service.NewDispatcher(service.DispatcherConfig{})
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start dispatcher")
	}

	controller := pipeline.NewController(dispatcher, nil)
	defer controller.Stop()

	router := server.NewRouter(server.RouterDeps{
		Market:      server.NewMarketHandler(controller, server.NewSymbolService(symbolsCache)),
		Persistence: server.NewPersistenceHandler(repository.NewMarketRepository(db)),
		Events:      server.NewEventsHandler(dispatcher),
		Health:      server.NewHealthHandler(productName, version),
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	// Health probes run on a separate gRPC listener with keepalive tuned for
	// long-lived monitoring connections.
	var grpcServer *grpc.Server
	if cfg.Server.HealthAddr != "" {
		listener, err := net.Listen("tcp", cfg.Server.HealthAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Server.HealthAddr).Msg("failed to listen for health probes")
		}

		grpcServer = grpc.NewServer(
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle: 5 * time.Minute,
				MaxConnectionAge:  30 * time.Minute,
				Time:              20 * time.Second,
				Timeout:           10 * time.Second,
			}),
		)
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		go func() {
			log.Info().Str("addr", cfg.Server.HealthAddr).Msg("health server starting")
			if err := grpcServer.Serve(listener); err != nil {
				log.Error().Err(err).Msg("health server failed")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")

		controller.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown incomplete")
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("db", cfg.Database.Path).
		Bool("symbolsCache", symbolsCache != nil).
		Msg("server starting")

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
