// Package main implements blockproc, the purepool settlement service.
// It discovers new chain blocks, walks pool blocks through maturity and
// shareout, re-rates miners and sweeps expired intake rows.
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
	"github.com/purepool/purepool/internal/block"
	"github.com/purepool/purepool/internal/config"
	"github.com/purepool/purepool/internal/database"
	"github.com/purepool/purepool/internal/database/influx"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/database/redis"
	"github.com/purepool/purepool/internal/miner"
	"github.com/purepool/purepool/internal/payout"
	"github.com/purepool/purepool/pkg/log"
)

const (
	discoveryInterval  = time.Minute
	assignInterval     = 30 * time.Second
	shareoutInterval   = 5 * time.Minute
	evaluationInterval = time.Hour
	sweepInterval      = 6 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New("blockproc", cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting blockproc",
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db.StartPeriodicTasks(ctx)

	evaluator := miner.NewEvaluator(db.Solutions, db.Blocks, db.Miners, logger)
	sweeper := payout.NewSweeper(cfg.RetentionDays, db.Works, db.Solutions, logger)

	for name, nc := range cfg.Networks {
		runner, err := newNetworkRunner(cfg, name, nc, db, evaluator, logger)
		if err != nil {
			logger.WithError(err).Error("failed to set up network", "network", name)
			os.Exit(1)
		}
		defer runner.close()

		go runner.run(ctx)
	}

	// Retention sweeping is global, not per network
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sweeper.Sweep(ctx); err != nil {
					logger.WithError(err).Error("retention sweep failed")
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	logger.Info("blockproc stopped")
}

// networkRunner drives the settlement loop of one network. Discovery
// runs on ZMQ block notifications with a timer as fallback; everything
// runs on one goroutine so no two settlement steps overlap.
type networkRunner struct {
	network    string
	discoverer *block.Discoverer
	settler    *block.Settler
	evaluator  *miner.Evaluator
	rpcClient  *biblepay.RPCClient
	notifier   *biblepay.ZMQNotifier
	blockSeen  chan struct{}
	logger     *log.Logger
}

func newNetworkRunner(cfg *config.Config, name string, nc *config.NetworkConfig,
	db *database.Manager, evaluator *miner.Evaluator, logger *log.Logger) (*networkRunner, error) {
	rpcClient, err := biblepay.NewRPCClient(name, nc.RPCHost, nc.RPCPort, cfg.RPCUser, cfg.RPCPassword)
	if err != nil {
		return nil, err
	}

	notifier, err := biblepay.NewZMQNotifier(name, nc.ZMQAddr, logger.Logger)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	return &networkRunner{
		network: name,
		discoverer: block.NewDiscoverer(name, nc.PoolAddress,
			rpcClient, db.Blocks, db.Miners, db.Influx, logger),
		settler: block.NewSettler(name, nc.PoolAddress,
			time.Duration(nc.MatureHours)*time.Hour, decimal.NewFromFloat(cfg.PoolFeePercent),
			rpcClient, db.Blocks, db.Solutions, db.Transactions, db.Miners, db.Influx, logger),
		evaluator: evaluator,
		rpcClient: rpcClient,
		notifier:  notifier,
		blockSeen: make(chan struct{}, 1),
		logger:    logger.WithComponent("blockproc").WithNetwork(name),
	}, nil
}

func (r *networkRunner) close() {
	if err := r.notifier.Close(); err != nil {
		r.logger.WithError(err).Error("failed to close ZMQ notifier")
	}
	r.rpcClient.Close()
}

func (r *networkRunner) run(ctx context.Context) {
	go r.listenForBlocks(ctx)

	discoverTicker := time.NewTicker(discoveryInterval)
	assignTicker := time.NewTicker(assignInterval)
	shareoutTicker := time.NewTicker(shareoutInterval)
	evaluateTicker := time.NewTicker(evaluationInterval)
	defer discoverTicker.Stop()
	defer assignTicker.Stop()
	defer shareoutTicker.Stop()
	defer evaluateTicker.Stop()

	// Catch up on anything missed while the service was down
	r.discover(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.blockSeen:
			r.discover(ctx)
		case <-discoverTicker.C:
			r.discover(ctx)
		case <-assignTicker.C:
			if err := r.settler.ProcessNextBlock(ctx); err != nil {
				r.logger.WithError(err).Error("block processing failed")
			}
		case <-shareoutTicker.C:
			if err := r.settler.Shareout(ctx, false); err != nil {
				r.logger.WithError(err).Error("shareout failed")
			}
		case <-evaluateTicker.C:
			if err := r.evaluator.Evaluate(ctx, r.network); err != nil {
				r.logger.WithError(err).Error("miner evaluation failed")
			}
		}
	}
}

func (r *networkRunner) discover(ctx context.Context) {
	found, err := r.discoverer.Discover(ctx, false, 0)
	if err != nil {
		r.logger.WithError(err).Error("block discovery failed")
		return
	}
	if found > 0 {
		r.logger.Info("blocks discovered", "count", found)
	}
}

// listenForBlocks turns daemon hashblock notifications into discovery
// wakeups. The channel holds one pending wakeup; bursts coalesce.
func (r *networkRunner) listenForBlocks(ctx context.Context) {
	if err := r.notifier.Connect(); err != nil {
		r.logger.WithError(err).Error("ZMQ connect failed, relying on polling")
		return
	}
	if err := r.notifier.Subscribe("hashblock"); err != nil {
		r.logger.WithError(err).Error("ZMQ subscribe failed, relying on polling")
		return
	}

	handler := biblepay.NewBlockNotificationHandler(r.network, r.logger.Logger)
	handler.SetNewBlockHandler(func(network, blockHash string) error {
		select {
		case r.blockSeen <- struct{}{}:
		default:
		}
		return nil
	})

	if err := r.notifier.Listen(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
		r.logger.WithError(err).Error("ZMQ listener stopped, relying on polling")
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
