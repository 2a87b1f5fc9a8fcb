// Package main implements poold, the HTTP frontend of the purepool
// mining pool. It grants work tickets to miners and queues submitted
// solutions for asynchronous validation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/purepool/purepool/internal/config"
	"github.com/purepool/purepool/internal/database"
	"github.com/purepool/purepool/internal/database/influx"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/database/redis"
	"github.com/purepool/purepool/internal/intake"
	"github.com/purepool/purepool/internal/messaging"
	"github.com/purepool/purepool/internal/miner"
	"github.com/purepool/purepool/internal/work"
	"github.com/purepool/purepool/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New("poold", cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting poold",
		"version", cfg.Version,
		"networks", cfg.NetworkNames(),
		"listen_port", cfg.ListenPort,
	)

	db, err := database.NewManager(databaseConfig(cfg))
	if err != nil {
		logger.WithError(err).Error("failed to connect databases")
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("failed to close databases")
		}
	}()

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger.Logger)
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close Kafka client")
		}
	}()

	directory := miner.NewDirectory(db.Miners, db.Workers, db.Redis, logger)
	issuer := work.NewIssuer(db.Works)
	handler := intake.NewHandler(cfg.Networks, directory, issuer, kafkaClient, logger)

	mux := http.NewServeMux()
	// The mining client posts everything to one URL and routes by header
	mux.Handle("/", handler)
	mux.Handle("/Action.aspx", handler)
	mux.Handle("/stats/miner", intake.NewStatsHandler(db, logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ListenPort),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db.StartPeriodicTasks(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}

	logger.Info("poold stopped")
}

func databaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
		Postgres: &postgres.Config{URL: cfg.PostgresURL},
		Redis:    &redis.Config{URL: cfg.RedisURL},
		Influx: &influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		},
	}
}
