package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRepository handles the append-only miner ledger
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends one ledger entry
func (r *TransactionRepository) Create(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO transactions (network, miner_id, amount, category, note, internal_note, tx, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		tx.Network, tx.MinerID, tx.Amount, tx.Category,
		tx.Note, tx.InternalNote, tx.TxID, now,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	tx.InsertedAt = now
	return nil
}

// SumByMiner computes a miner's true balance as the sum of its ledger
// entries. This is the source of truth; the cached balance on the miner
// row is derived from it.
func (r *TransactionRepository) SumByMiner(ctx context.Context, network, minerID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE network = $1 AND miner_id = $2`

	var sum decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, network, minerID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// CountRecentPayouts counts a miner's outgoing transactions since the
// given time. The payout scheduler uses it to skip recently paid miners.
func (r *TransactionRepository) CountRecentPayouts(ctx context.Context, network, minerID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE network = $1 AND miner_id = $2 AND category = $3 AND inserted_at > $4`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, network, minerID, TxCategoryOutgoing, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent payouts: %w", err)
	}
	return count, nil
}

// CreateError records a failed payout attempt
func (r *TransactionRepository) CreateError(ctx context.Context, txErr *TransactionError) error {
	query := `
		INSERT INTO transaction_errors (network, miner_id, amount, error_message, inserted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		txErr.Network, txErr.MinerID, txErr.Amount, txErr.ErrorMessage, now,
	).Scan(&txErr.ID)
	if err != nil {
		return fmt.Errorf("failed to create transaction error: %w", err)
	}

	txErr.InsertedAt = now
	return nil
}

// RecordPayout appends the debit entry for a sent payout and refreshes
// the miner's cached balance from the ledger, atomically. Either both
// apply or neither does.
func (r *TransactionRepository) RecordPayout(ctx context.Context, tx *Transaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin payout transaction: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	now := time.Now()
	err = dbTx.QueryRowContext(ctx, `
		INSERT INTO transactions (network, miner_id, amount, category, note, internal_note, tx, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		tx.Network, tx.MinerID, tx.Amount, tx.Category,
		tx.Note, tx.InternalNote, tx.TxID, now,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("failed to record payout debit: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
		UPDATE miners
		SET balance = (
			SELECT COALESCE(SUM(amount), 0)
			FROM transactions
			WHERE network = $1 AND miner_id = $2
		)
		WHERE id = $2 AND network = $1`,
		tx.Network, tx.MinerID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh miner balance: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout: %w", err)
	}

	tx.InsertedAt = now
	return nil
}
