// Package block drives the block lifecycle: discovery of new chain
// heights, assignment of solutions to pool blocks and the settlement
// that turns a matured block's subsidy into miner credits.
package block

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/internal/database/postgres"
)

// Store is the block persistence the lifecycle needs.
type Store interface {
	MaxHeight(ctx context.Context, network string) (int64, bool, error)
	Create(ctx context.Context, block *postgres.Block) error
	OldestOpenPoolBlock(ctx context.Context, network string) (*postgres.Block, error)
	OldestMaturedBlock(ctx context.Context, network string, before time.Time) (*postgres.Block, error)
	ClaimStatus(ctx context.Context, blockID int64, from, to string) (bool, error)
	SetStatus(ctx context.Context, blockID int64, status string) error
	CountInStatus(ctx context.Context, network, status string) (int64, error)
}

// SolutionStore is the solution surface the lifecycle needs.
type SolutionStore interface {
	AssignToBlock(ctx context.Context, network string, blockID int64, before time.Time) (int64, error)
	ShareCounts(ctx context.Context, network string, blockID int64, onlyUnprocessed bool) ([]postgres.MinerShareCount, error)
	MarkProcessed(ctx context.Context, network string, blockID int64) error
}

// LedgerStore is the transaction ledger surface the settlement needs.
type LedgerStore interface {
	Create(ctx context.Context, tx *postgres.Transaction) error
	SumByMiner(ctx context.Context, network, minerID string) (decimal.Decimal, error)
}

// MinerStore is the miner surface the lifecycle needs.
type MinerStore interface {
	GetByID(ctx context.Context, minerID string) (*postgres.Miner, error)
	UpdateBalance(ctx context.Context, network, minerID string, balance decimal.Decimal) error
}

// Metrics receives block lifecycle measurements. May be nil.
type Metrics interface {
	WriteBlockMetric(network string, height int64, poolBlock bool, subsidy float64)
	WriteShareoutMetric(network string, height, totalShares int64, miners int, distributed float64)
}
