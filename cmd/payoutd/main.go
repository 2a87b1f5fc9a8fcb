// Package main implements payoutd, the purepool payment service. It
// periodically pays miners whose ledger balance crossed the network
// minimum, throttled against the wallet.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/config"
	"github.com/purepool/purepool/internal/database"
	"github.com/purepool/purepool/internal/database/influx"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/database/redis"
	"github.com/purepool/purepool/internal/payout"
	"github.com/purepool/purepool/pkg/log"
)

const payoutInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New("payoutd", cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting payoutd",
		"version", cfg.Version,
		"networks", cfg.NetworkNames(),
		"batch_size", cfg.PayoutBatchSize,
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db.StartPeriodicTasks(ctx)

	for name, nc := range cfg.Networks {
		rpcClient, err := biblepay.NewRPCClient(name, nc.RPCHost, nc.RPCPort, cfg.RPCUser, cfg.RPCPassword)
		if err != nil {
			logger.WithError(err).Error("failed to create RPC client", "network", name)
			os.Exit(1)
		}
		defer rpcClient.Close()

		scheduler := payout.NewScheduler(name, decimal.NewFromFloat(nc.MinimumPayout),
			cfg.PayoutHoldback, cfg.PayoutBatchSize, cfg.PayoutsPerMinute,
			rpcClient, db.Miners, db.Transactions, db.Influx, logger)

		go runScheduler(ctx, name, scheduler, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	logger.Info("payoutd stopped")
}

func runScheduler(ctx context.Context, network string, scheduler *payout.Scheduler, logger *log.Logger) {
	ticker := time.NewTicker(payoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := scheduler.Run(ctx)
			if err != nil {
				logger.WithError(err).Error("payout run failed", "network", network)
				continue
			}
			if sent > 0 {
				logger.Info("payout run complete", "network", network, "sent", sent)
			}
		}
	}
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
