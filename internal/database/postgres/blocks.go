package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ErrBlockNotFound is returned when a block lookup matches no row.
var ErrBlockNotFound = fmt.Errorf("block not found")

// BlockRepository handles block database operations
type BlockRepository struct {
	db *sql.DB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// MaxHeight returns the highest known height for a network. The boolean
// is false when no block has been discovered yet.
func (r *BlockRepository) MaxHeight(ctx context.Context, network string) (int64, bool, error) {
	var height sql.NullInt64
	query := `SELECT MAX(height) FROM blocks WHERE network = $1`

	if err := r.db.QueryRowContext(ctx, query, network).Scan(&height); err != nil {
		return 0, false, fmt.Errorf("failed to query max height: %w", err)
	}

	if !height.Valid {
		return 0, false, nil
	}
	return height.Int64, true, nil
}

// Create inserts a newly discovered block
func (r *BlockRepository) Create(ctx context.Context, block *Block) error {
	query := `
		INSERT INTO blocks (network, height, pool_block, miner_id, subsidy, recipient,
		                    process_status, block_version, block_version2, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		block.Network, block.Height, block.PoolBlock, block.MinerID, block.Subsidy,
		block.Recipient, block.Status, block.BlockVersion, block.BlockVersion2, now,
	).Scan(&block.ID)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	block.InsertedAt = now
	return nil
}

// GetByHeight retrieves one block by network and height
func (r *BlockRepository) GetByHeight(ctx context.Context, network string, height int64) (*Block, error) {
	query := `
		SELECT id, network, height, pool_block, miner_id, subsidy, recipient,
		       process_status, block_version, block_version2, inserted_at
		FROM blocks
		WHERE network = $1 AND height = $2`

	return r.scanBlock(r.db.QueryRowContext(ctx, query, network, height))
}

// OldestOpenPoolBlock returns the lowest-height pool block still in the
// Open state, or nil when there is none.
func (r *BlockRepository) OldestOpenPoolBlock(ctx context.Context, network string) (*Block, error) {
	query := `
		SELECT id, network, height, pool_block, miner_id, subsidy, recipient,
		       process_status, block_version, block_version2, inserted_at
		FROM blocks
		WHERE network = $1 AND pool_block = true AND process_status = $2
		ORDER BY height ASC
		LIMIT 1`

	block, err := r.scanBlock(r.db.QueryRowContext(ctx, query, network, BlockStatusOpen))
	if err == ErrBlockNotFound {
		return nil, nil
	}
	return block, err
}

// OldestMaturedBlock returns the lowest-height pool block that has had
// its basics processed and was discovered before the maturity cutoff, or
// nil when there is none.
func (r *BlockRepository) OldestMaturedBlock(ctx context.Context, network string, before time.Time) (*Block, error) {
	query := `
		SELECT id, network, height, pool_block, miner_id, subsidy, recipient,
		       process_status, block_version, block_version2, inserted_at
		FROM blocks
		WHERE network = $1 AND pool_block = true AND process_status = $2 AND inserted_at < $3
		ORDER BY height ASC
		LIMIT 1`

	block, err := r.scanBlock(r.db.QueryRowContext(ctx, query, network, BlockStatusBasicsProcessed, before))
	if err == ErrBlockNotFound {
		return nil, nil
	}
	return block, err
}

func (r *BlockRepository) scanBlock(row *sql.Row) (*Block, error) {
	block := &Block{}
	err := row.Scan(
		&block.ID, &block.Network, &block.Height, &block.PoolBlock, &block.MinerID,
		&block.Subsidy, &block.Recipient, &block.Status,
		&block.BlockVersion, &block.BlockVersion2, &block.InsertedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}

// ClaimStatus advances a block's status only if it still has the expected
// one. This compare-and-swap is the single-flight guard: a concurrent
// runner that loses the race sees zero rows updated and backs off.
func (r *BlockRepository) ClaimStatus(ctx context.Context, blockID int64, from, to string) (bool, error) {
	query := `UPDATE blocks SET process_status = $1 WHERE id = $2 AND process_status = $3`

	result, err := r.db.ExecContext(ctx, query, to, blockID, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim block status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check claimed block status: %w", err)
	}
	return affected == 1, nil
}

// SetStatus unconditionally sets a block's status
func (r *BlockRepository) SetStatus(ctx context.Context, blockID int64, status string) error {
	query := `UPDATE blocks SET process_status = $1 WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, status, blockID); err != nil {
		return fmt.Errorf("failed to set block status: %w", err)
	}
	return nil
}

// CountInStatus counts a network's pool blocks in one lifecycle state
func (r *BlockRepository) CountInStatus(ctx context.Context, network, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM blocks WHERE network = $1 AND pool_block = true AND process_status = $2`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, network, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocks in status: %w", err)
	}
	return count, nil
}

// CountPoolBlocksSince counts pool blocks discovered since the given time
func (r *BlockRepository) CountPoolBlocksSince(ctx context.Context, network string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM blocks WHERE network = $1 AND pool_block = true AND inserted_at >= $2`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, network, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pool blocks: %w", err)
	}
	return count, nil
}

// MinerBlockCounts tallies pool blocks per attributed miner since the
// given time. Blocks without a miner attribution are skipped.
func (r *BlockRepository) MinerBlockCounts(ctx context.Context, network string, since time.Time) ([]MinerShareCount, error) {
	query := `
		SELECT miner_id, COUNT(*) AS total
		FROM blocks
		WHERE network = $1 AND pool_block = true AND inserted_at >= $2 AND miner_id IS NOT NULL
		GROUP BY miner_id`

	rows, err := r.db.QueryContext(ctx, query, network, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query miner block counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []MinerShareCount
	for rows.Next() {
		var count MinerShareCount
		if err := rows.Scan(&count.MinerID, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan miner block count: %w", err)
		}
		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating miner block counts: %w", err)
	}

	return counts, nil
}

// CountBlocksByMiner counts one miner's attributed blocks since the given time
func (r *BlockRepository) CountBlocksByMiner(ctx context.Context, network, minerID string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM blocks WHERE network = $1 AND miner_id = $2 AND inserted_at >= $3`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, network, minerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocks by miner: %w", err)
	}
	return count, nil
}
