// Package miner manages miner and worker identities: the read-through
// directory cache on the submission hot path and the periodic reputation
// evaluation.
package miner

import (
	"context"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/database/redis"
	"github.com/purepool/purepool/internal/wire"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

// ErrMinerDisabled is returned for administratively disabled miners. The
// flag is sticky: once cached, the database is not consulted again until
// the cache entry is invalidated.
var ErrMinerDisabled = errors.New(errors.ErrorTypeValidation, "miner_directory", "miner is disabled")

// ErrInvalidAddress is returned when the submitted payout address does
// not look like a BiblePay address.
var ErrInvalidAddress = errors.New(errors.ErrorTypeValidation, "miner_directory", "invalid miner address")

// MinerStore is the miner persistence the directory needs.
type MinerStore interface {
	GetByAddress(ctx context.Context, network, address string) (*postgres.Miner, error)
	Create(ctx context.Context, miner *postgres.Miner) error
}

// WorkerStore is the worker persistence the directory needs.
type WorkerStore interface {
	GetByName(ctx context.Context, minerID, name string) (*postgres.Worker, error)
	Create(ctx context.Context, worker *postgres.Worker) error
}

// Cache is the identity cache in front of the database.
type Cache interface {
	GetMinerID(ctx context.Context, network, address string) (string, error)
	SetMinerID(ctx context.Context, network, address, minerID string) error
	MarkMinerDisabled(ctx context.Context, network, address string) error
	GetWorkerID(ctx context.Context, network, address, worker string) (string, error)
	SetWorkerID(ctx context.Context, network, address, worker, workerID string) error
}

// Directory resolves miner fields from the wire into miner and worker
// ids, creating unknown identities on first contact.
type Directory struct {
	miners  MinerStore
	workers WorkerStore
	cache   Cache
	logger  *log.Logger
}

// NewDirectory creates a miner directory.
func NewDirectory(miners MinerStore, workers WorkerStore, cache Cache, logger *log.Logger) *Directory {
	return &Directory{
		miners:  miners,
		workers: workers,
		cache:   cache,
		logger:  logger.WithComponent("miner_directory"),
	}
}

// GetOrCreateMinerWorker resolves a raw "address/worker/email" field into
// a (miner id, worker id) pair, creating both records when unknown.
// Disabled miners fail with ErrMinerDisabled from the cache alone.
func (d *Directory) GetOrCreateMinerWorker(ctx context.Context, network, minerField string) (string, string, error) {
	workerID, err := wire.ParseWorkerID(minerField)
	if err != nil {
		return "", "", err
	}

	if !biblepay.ValidAddressFormat(workerID.Address) {
		return "", "", ErrInvalidAddress
	}

	minerID, err := d.resolveMiner(ctx, network, workerID.Address)
	if err != nil {
		return "", "", err
	}

	resolvedWorker, err := d.resolveWorker(ctx, network, workerID.Address, minerID, workerID.Worker)
	if err != nil {
		return "", "", err
	}

	return minerID, resolvedWorker, nil
}

func (d *Directory) resolveMiner(ctx context.Context, network, address string) (string, error) {
	minerID, err := d.cache.GetMinerID(ctx, network, address)
	switch {
	case err == nil:
		return minerID, nil
	case err == redis.ErrMinerDisabled:
		return "", ErrMinerDisabled
	case err != redis.ErrCacheMiss:
		// The cache is an accelerator, not a dependency
		d.logger.WithError(err).Warn("miner cache lookup failed", "address", address)
	}

	miner, err := d.miners.GetByAddress(ctx, network, address)
	if err == postgres.ErrMinerNotFound {
		miner = &postgres.Miner{Network: network, Address: address}
		if err := d.miners.Create(ctx, miner); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeDatabase, "miner_directory",
				"failed to create miner").
				WithContext("address", address)
		}
		d.logger.Info("new miner registered", "network", network, "address", address)
	} else if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeDatabase, "miner_directory",
			"failed to load miner").
			WithContext("address", address)
	}

	if !miner.Enabled {
		if err := d.cache.MarkMinerDisabled(ctx, network, address); err != nil {
			d.logger.WithError(err).Warn("failed to cache disabled miner", "address", address)
		}
		return "", ErrMinerDisabled
	}

	if err := d.cache.SetMinerID(ctx, network, address, miner.ID); err != nil {
		d.logger.WithError(err).Warn("failed to cache miner id", "address", address)
	}
	return miner.ID, nil
}

func (d *Directory) resolveWorker(ctx context.Context, network, address, minerID, name string) (string, error) {
	workerID, err := d.cache.GetWorkerID(ctx, network, address, name)
	if err == nil {
		return workerID, nil
	}
	if err != redis.ErrCacheMiss {
		d.logger.WithError(err).Warn("worker cache lookup failed", "address", address, "worker", name)
	}

	worker, err := d.workers.GetByName(ctx, minerID, name)
	if err == postgres.ErrWorkerNotFound {
		worker = &postgres.Worker{MinerID: minerID, Name: name}
		if err := d.workers.Create(ctx, worker); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeDatabase, "miner_directory",
				"failed to create worker").
				WithContext("miner_id", minerID).
				WithContext("worker", name)
		}
	} else if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeDatabase, "miner_directory",
			"failed to load worker").
			WithContext("miner_id", minerID).
			WithContext("worker", name)
	}

	if err := d.cache.SetWorkerID(ctx, network, address, name, worker.ID); err != nil {
		d.logger.WithError(err).Warn("failed to cache worker id", "address", address, "worker", name)
	}
	return worker.ID, nil
}
