// Package main implements solutionproc, the purepool validation worker.
// It consumes submitted solutions from Kafka, verifies their proofs
// against the BiblePay daemon and persists the verdicts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/config"
	"github.com/purepool/purepool/internal/database"
	"github.com/purepool/purepool/internal/database/influx"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/database/redis"
	"github.com/purepool/purepool/internal/messaging"
	"github.com/purepool/purepool/internal/solution"
	"github.com/purepool/purepool/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New("solutionproc", cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting solutionproc",
		"version", cfg.Version,
		"networks", cfg.NetworkNames(),
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

	// One validation pipeline per configured network, sharing the Kafka
	// consumer through a network router. Validation is daemon-RPC bound,
	// so messages fan out to a worker pool instead of blocking the
	// consumer loop.
	router := &solutionRouter{
		processors: make(map[string]*solution.Processor),
		queue:      make(chan submission, cfg.WorkerPoolSize*10),
		logger:     logger,
	}

	var rpcClients []*biblepay.RPCClient
	for name, nc := range cfg.Networks {
		rpcClient, err := biblepay.NewRPCClient(name, nc.RPCHost, nc.RPCPort, cfg.RPCUser, cfg.RPCPassword)
		if err != nil {
			logger.WithError(err).Error("failed to create RPC client", "network", name)
			os.Exit(1)
		}
		rpcClients = append(rpcClients, rpcClient)

		validator := solution.NewValidator(name, nc.PoolAddress, db.Works, rpcClient)
		multiplier := solution.NewMultiplier(rand.New(rand.NewSource(time.Now().UnixNano())))
		router.processors[name] = solution.NewProcessor(
			name, db.Solutions, db.Miners, validator, multiplier, db.Redis, db.Influx, logger)
	}
	defer func() {
		for _, c := range rpcClients {
			c.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db.StartPeriodicTasks(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for i := 0; i < cfg.WorkerPoolSize; i++ {
		go router.worker(ctx, i)
	}

	go func() {
		err := kafkaClient.StartConsumer(ctx, messaging.TopicSolutions, cfg.KafkaGroupID+"-solutionproc", router)
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("solution consumer failed")
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	logger.Info("solutionproc stopped")
}

// submission is one consumed message waiting for a validation worker.
type submission struct {
	key   string
	value []byte
}

// solutionRouter fans consumed messages out to a worker pool and, per
// message, to the processor of the network it belongs to. Every network
// shares one consumer group, so the router must exist before any
// message is read.
type solutionRouter struct {
	processors map[string]*solution.Processor
	queue      chan submission
	logger     *log.Logger
}

// HandleMessage enqueues a consumed message. A full queue blocks the
// consumer loop, which is the backpressure that keeps Kafka holding the
// backlog instead of this process.
func (r *solutionRouter) HandleMessage(ctx context.Context, key string, value []byte) error {
	select {
	case r.queue <- submission{key: key, value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *solutionRouter) worker(ctx context.Context, id int) {
	logger := r.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-r.queue:
			r.handle(ctx, logger, sub)
		}
	}
}

func (r *solutionRouter) handle(ctx context.Context, logger *slog.Logger, sub submission) {
	var msg messaging.SolutionMessage
	if err := json.Unmarshal(sub.value, &msg); err != nil {
		logger.Error("dropping unreadable solution message", "error", err)
		return
	}

	processor, ok := r.processors[msg.Network]
	if !ok {
		logger.Warn("dropping solution for unconfigured network", "network", msg.Network)
		return
	}

	if err := processor.HandleMessage(ctx, sub.key, sub.value); err != nil {
		logger.Error("solution processing failed", "network", msg.Network, "error", err)
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
