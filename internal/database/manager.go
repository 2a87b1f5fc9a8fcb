// Package database provides unified database management for the purepool
// services. It coordinates operations across PostgreSQL, Redis, and
// InfluxDB.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/purepool/purepool/internal/database/influx"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/database/redis"
	"github.com/purepool/purepool/pkg/errors"
)

// Manager coordinates all database operations across PostgreSQL, Redis, and InfluxDB
type Manager struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Influx   *influx.Client

	// Repositories
	Miners       *postgres.MinerRepository
	Workers      *postgres.WorkerRepository
	Works        *postgres.WorkRepository
	Solutions    *postgres.SolutionRepository
	Blocks       *postgres.BlockRepository
	Transactions *postgres.TransactionRepository
}

// Config holds configuration for all database systems
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// NewManager creates a new database manager with all connections
func NewManager(cfg *Config) (*Manager, error) {
	// Initialize PostgreSQL
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_connection",
			"failed to connect to PostgreSQL database")
	}

	// Initialize Redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		if closeErr := pgClient.Close(); closeErr != nil {
			origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
				"failed to connect to Redis database")
			closeErr = errors.Wrap(closeErr, errors.ErrorTypeDatabase, "postgres_cleanup",
				"failed to close PostgreSQL connection during error cleanup")
			return nil, errors.New(errors.ErrorTypeDatabase, "connection_failure",
				"multiple database connection failures").
				WithContext("redis_error", origErr.Error()).
				WithContext("postgres_cleanup_error", closeErr.Error())
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
			"failed to connect to Redis database")
	}

	// Initialize InfluxDB
	influxClient, err := influx.NewClient(cfg.Influx)
	if err != nil {
		var closeErrs []error
		if closeErr := pgClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}
		if closeErr := redisClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}

		origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "influx_connection",
			"failed to connect to InfluxDB database")

		if len(closeErrs) > 0 {
			return nil, origErr.WithContext("cleanup_errors", fmt.Sprintf("%v", closeErrs))
		}
		return nil, origErr
	}

	db := pgClient.DB()
	return &Manager{
		Postgres:     pgClient,
		Redis:        redisClient,
		Influx:       influxClient,
		Miners:       postgres.NewMinerRepository(db),
		Workers:      postgres.NewWorkerRepository(db),
		Works:        postgres.NewWorkRepository(db),
		Solutions:    postgres.NewSolutionRepository(db),
		Blocks:       postgres.NewBlockRepository(db),
		Transactions: postgres.NewTransactionRepository(db),
	}, nil
}

// Close closes all database connections
func (m *Manager) Close() error {
	var errs []error

	if err := m.Postgres.Close(); err != nil {
		errs = append(errs, fmt.Errorf("PostgreSQL close error: %w", err))
	}

	if err := m.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close error: %w", err))
	}

	m.Influx.Close()

	if len(errs) > 0 {
		return fmt.Errorf("database close errors: %v", errs)
	}

	return nil
}

// Health checks the health of all database connections
func (m *Manager) Health(ctx context.Context) error {
	if err := m.Postgres.Health(ctx); err != nil {
		return fmt.Errorf("PostgreSQL health check failed: %w", err)
	}

	if err := m.Redis.Health(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if err := m.Influx.Health(ctx); err != nil {
		return fmt.Errorf("InfluxDB health check failed: %w", err)
	}

	return nil
}

// MinerWithStats combines a miner row with real-time statistics
type MinerWithStats struct {
	Miner         *postgres.Miner
	Hashrate      float64
	SolutionStats *influx.SolutionStats
}

// GetMinerWithStats retrieves miner data with aggregated statistics
func (m *Manager) GetMinerWithStats(ctx context.Context, network, address string) (*MinerWithStats, error) {
	miner, err := m.Miners.GetByAddress(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get miner: %w", err)
	}

	// Best effort stats, default to zero values when unavailable
	hashrate, err := m.Redis.GetAverageHashrate(ctx, network, miner.ID, "", 10*time.Minute)
	if err != nil {
		hashrate = 0
	}

	stats, err := m.Influx.GetSolutionStats(ctx, network, miner.ID, 24*time.Hour)
	if err != nil {
		stats = &influx.SolutionStats{}
	}

	return &MinerWithStats{
		Miner:         miner,
		Hashrate:      hashrate,
		SolutionStats: stats,
	}, nil
}

// StartPeriodicTasks starts background tasks for database maintenance
func (m *Manager) StartPeriodicTasks(ctx context.Context) {
	// Flush InfluxDB writes every 10 seconds
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Influx.Flush()
			}
		}
	}()
}
