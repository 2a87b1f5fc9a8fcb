package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrMinerNotFound is returned when a miner lookup matches no row.
var ErrMinerNotFound = fmt.Errorf("miner not found")

// ErrWorkerNotFound is returned when a worker lookup matches no row.
var ErrWorkerNotFound = fmt.Errorf("worker not found")

// MinerRepository handles miner-related database operations
type MinerRepository struct {
	db *sql.DB
}

// NewMinerRepository creates a new miner repository
func NewMinerRepository(db *sql.DB) *MinerRepository {
	return &MinerRepository{db: db}
}

// Create inserts a new miner. A uuid id is generated when the caller did
// not set one.
func (r *MinerRepository) Create(ctx context.Context, miner *Miner) error {
	if miner.ID == "" {
		miner.ID = uuid.NewString()
	}
	if miner.PercentRatio.IsZero() {
		miner.PercentRatio = decimal.NewFromInt(100)
	}

	query := `
		INSERT INTO miners (id, network, address, rating, ratio, percent_ratio, balance, enabled, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		miner.ID, miner.Network, miner.Address, miner.Rating, miner.Ratio,
		miner.PercentRatio, miner.Balance, true, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create miner: %w", err)
	}

	miner.Enabled = true
	miner.InsertedAt = now
	return nil
}

// GetByAddress retrieves a miner by network and payout address
func (r *MinerRepository) GetByAddress(ctx context.Context, network, address string) (*Miner, error) {
	query := `
		SELECT id, network, address, rating, ratio, percent_ratio, balance, enabled,
		       last_accepted_solution_at, inserted_at
		FROM miners WHERE network = $1 AND address = $2`

	return r.scanMiner(r.db.QueryRowContext(ctx, query, network, address))
}

// GetByID retrieves a miner by its uuid
func (r *MinerRepository) GetByID(ctx context.Context, minerID string) (*Miner, error) {
	query := `
		SELECT id, network, address, rating, ratio, percent_ratio, balance, enabled,
		       last_accepted_solution_at, inserted_at
		FROM miners WHERE id = $1`

	return r.scanMiner(r.db.QueryRowContext(ctx, query, minerID))
}

func (r *MinerRepository) scanMiner(row *sql.Row) (*Miner, error) {
	miner := &Miner{}
	err := row.Scan(
		&miner.ID, &miner.Network, &miner.Address, &miner.Rating, &miner.Ratio,
		&miner.PercentRatio, &miner.Balance, &miner.Enabled,
		&miner.LastAcceptedSolution, &miner.InsertedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMinerNotFound
		}
		return nil, fmt.Errorf("failed to get miner: %w", err)
	}
	return miner, nil
}

// UpdateBalance persists a recomputed cached balance
func (r *MinerRepository) UpdateBalance(ctx context.Context, network, minerID string, balance decimal.Decimal) error {
	query := `UPDATE miners SET balance = $1 WHERE id = $2 AND network = $3`

	if _, err := r.db.ExecContext(ctx, query, balance, minerID, network); err != nil {
		return fmt.Errorf("failed to update miner balance: %w", err)
	}
	return nil
}

// UpdateRating persists a miner's recomputed reputation
func (r *MinerRepository) UpdateRating(ctx context.Context, minerID string, rating int, percentRatio decimal.Decimal) error {
	query := `UPDATE miners SET rating = $1, percent_ratio = $2 WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, rating, percentRatio, minerID); err != nil {
		return fmt.Errorf("failed to update miner rating: %w", err)
	}
	return nil
}

// ResetRatings sets every miner's rating back to the default before an
// evaluation run, so miners without recent shares end up neutral.
func (r *MinerRepository) ResetRatings(ctx context.Context, network string) error {
	query := `UPDATE miners SET rating = 0 WHERE network = $1`

	if _, err := r.db.ExecContext(ctx, query, network); err != nil {
		return fmt.Errorf("failed to reset miner ratings: %w", err)
	}
	return nil
}

// MarkAcceptedSolution updates the miner's last accepted solution time
func (r *MinerRepository) MarkAcceptedSolution(ctx context.Context, minerID string, at time.Time) error {
	query := `UPDATE miners SET last_accepted_solution_at = $1 WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, at, minerID); err != nil {
		return fmt.Errorf("failed to update last accepted solution: %w", err)
	}
	return nil
}

// AboveBalance returns the miners of a network whose cached balance
// exceeds the given minimum. Used by the payout scheduler; the cached
// balance is only a candidate filter, the true balance is recomputed
// from the ledger before any send.
func (r *MinerRepository) AboveBalance(ctx context.Context, network string, minimum decimal.Decimal) ([]*Miner, error) {
	query := `
		SELECT id, network, address, rating, ratio, percent_ratio, balance, enabled,
		       last_accepted_solution_at, inserted_at
		FROM miners
		WHERE network = $1 AND balance > $2
		ORDER BY balance DESC`

	rows, err := r.db.QueryContext(ctx, query, network, minimum)
	if err != nil {
		return nil, fmt.Errorf("failed to query miners above balance: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var miners []*Miner
	for rows.Next() {
		miner := &Miner{}
		err := rows.Scan(
			&miner.ID, &miner.Network, &miner.Address, &miner.Rating, &miner.Ratio,
			&miner.PercentRatio, &miner.Balance, &miner.Enabled,
			&miner.LastAcceptedSolution, &miner.InsertedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan miner: %w", err)
		}
		miners = append(miners, miner)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating miners: %w", err)
	}

	return miners, nil
}

// WorkerRepository handles worker-related database operations
type WorkerRepository struct {
	db *sql.DB
}

// NewWorkerRepository creates a new worker repository
func NewWorkerRepository(db *sql.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// Create inserts a new worker under a miner
func (r *WorkerRepository) Create(ctx context.Context, worker *Worker) error {
	if worker.ID == "" {
		worker.ID = uuid.NewString()
	}

	query := `
		INSERT INTO workers (id, miner_id, name, inserted_at)
		VALUES ($1, $2, $3, $4)`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, worker.ID, worker.MinerID, worker.Name, now); err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	worker.InsertedAt = now
	return nil
}

// GetByName retrieves a worker by miner id and worker name
func (r *WorkerRepository) GetByName(ctx context.Context, minerID, name string) (*Worker, error) {
	query := `
		SELECT id, miner_id, name, inserted_at
		FROM workers
		WHERE miner_id = $1 AND name = $2`

	worker := &Worker{}
	err := r.db.QueryRowContext(ctx, query, minerID, name).Scan(
		&worker.ID, &worker.MinerID, &worker.Name, &worker.InsertedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}

	return worker, nil
}
