package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// pqUniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const pqUniqueViolation = "23505"

// ErrDuplicateBibleHash is returned when inserting a solution whose bible
// hash already exists. The unique index on bible_hash is the pool-wide
// duplicate defense; a lost insert race is treated the same as a
// pre-check hit.
var ErrDuplicateBibleHash = fmt.Errorf("bible hash already known")

// SolutionRepository handles accepted and rejected solution storage
type SolutionRepository struct {
	db *sql.DB
}

// NewSolutionRepository creates a new solution repository
func NewSolutionRepository(db *sql.DB) *SolutionRepository {
	return &SolutionRepository{db: db}
}

// ExistsBibleHash reports whether an accepted solution with this bible
// hash already exists, on any network.
func (r *SolutionRepository) ExistsBibleHash(ctx context.Context, bibleHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM solutions WHERE bible_hash = $1)`

	if err := r.db.QueryRowContext(ctx, query, bibleHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check bible hash: %w", err)
	}
	return exists, nil
}

// Create inserts an accepted solution. A unique violation on the bible
// hash is mapped to ErrDuplicateBibleHash.
func (r *SolutionRepository) Create(ctx context.Context, solution *Solution) error {
	query := `
		INSERT INTO solutions (work_id, miner_id, network, bible_hash, solution, hps, processed, ignore, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, false, $7)
		RETURNING id`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		solution.WorkID, solution.MinerID, solution.Network,
		solution.BibleHash, solution.Solution, solution.HPS, now,
	).Scan(&solution.ID)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateBibleHash
		}
		return fmt.Errorf("failed to create solution: %w", err)
	}

	solution.InsertedAt = now
	return nil
}

// CreateRejected inserts a rejected solution record
func (r *SolutionRepository) CreateRejected(ctx context.Context, rejected *RejectedSolution) error {
	query := `
		INSERT INTO rejected_solutions (work_id, miner_id, network, bible_hash, solution, reason, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		rejected.WorkID, rejected.MinerID, rejected.Network,
		rejected.BibleHash, rejected.Solution, rejected.Reason, now,
	).Scan(&rejected.ID)
	if err != nil {
		return fmt.Errorf("failed to create rejected solution: %w", err)
	}

	rejected.InsertedAt = now
	return nil
}

// AssignToBlock attaches all unassigned, unprocessed solutions of a
// network inserted strictly before the given time to a block. This is the
// block assignment boundary: a solution belongs to exactly one block.
func (r *SolutionRepository) AssignToBlock(ctx context.Context, network string, blockID int64, before time.Time) (int64, error) {
	query := `
		UPDATE solutions
		SET block_id = $1
		WHERE network = $2 AND processed = false AND block_id IS NULL AND inserted_at < $3`

	result, err := r.db.ExecContext(ctx, query, blockID, network, before)
	if err != nil {
		return 0, fmt.Errorf("failed to assign solutions to block: %w", err)
	}

	assigned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count assigned solutions: %w", err)
	}
	return assigned, nil
}

// ShareCounts tallies a block's solutions per miner, excluding ignored
// rows. With onlyUnprocessed set, already settled solutions are skipped,
// which makes settlement idempotent.
func (r *SolutionRepository) ShareCounts(ctx context.Context, network string, blockID int64, onlyUnprocessed bool) ([]MinerShareCount, error) {
	query := `
		SELECT miner_id, COUNT(*) AS total
		FROM solutions
		WHERE network = $1 AND block_id = $2 AND ignore = false`
	if onlyUnprocessed {
		query += ` AND processed = false`
	}
	query += ` GROUP BY miner_id ORDER BY miner_id`

	rows, err := r.db.QueryContext(ctx, query, network, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to query share counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []MinerShareCount
	for rows.Next() {
		var count MinerShareCount
		if err := rows.Scan(&count.MinerID, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan share count: %w", err)
		}
		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating share counts: %w", err)
	}

	return counts, nil
}

// MarkProcessed flags a block's unprocessed solutions as settled
func (r *SolutionRepository) MarkProcessed(ctx context.Context, network string, blockID int64) error {
	query := `UPDATE solutions SET processed = true WHERE network = $1 AND block_id = $2 AND processed = false`

	if _, err := r.db.ExecContext(ctx, query, network, blockID); err != nil {
		return fmt.Errorf("failed to mark solutions processed: %w", err)
	}
	return nil
}

// DeleteOlderThan purges accepted solutions created before the cutoff
func (r *SolutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM solutions WHERE inserted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old solutions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteRejectedOlderThan purges rejected solutions created before the cutoff
func (r *SolutionRepository) DeleteRejectedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rejected_solutions WHERE inserted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old rejected solutions: %w", err)
	}
	return result.RowsAffected()
}

// BlankPayloadsOlderThan clears the raw wire payload of solutions past
// the retention window while keeping the row itself for statistics.
func (r *SolutionRepository) BlankPayloadsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE solutions SET solution = '' WHERE inserted_at < $1 AND solution <> ''`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to blank old solution payloads: %w", err)
	}
	return result.RowsAffected()
}

// MinerSolutionCounts tallies accepted solutions per miner since the
// given time, for enabled miners only. Used by the reputation evaluator.
func (r *SolutionRepository) MinerSolutionCounts(ctx context.Context, network string, since time.Time) ([]MinerShareCount, error) {
	query := `
		SELECT s.miner_id, COUNT(*) AS total
		FROM solutions s
		JOIN miners m ON m.id = s.miner_id
		WHERE s.network = $1 AND s.inserted_at >= $2 AND m.enabled = true
		GROUP BY s.miner_id`

	rows, err := r.db.QueryContext(ctx, query, network, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query miner solution counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []MinerShareCount
	for rows.Next() {
		var count MinerShareCount
		if err := rows.Scan(&count.MinerID, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan miner solution count: %w", err)
		}
		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating miner solution counts: %w", err)
	}

	return counts, nil
}

// CountByMiners counts accepted solutions since the given time across a
// set of miners.
func (r *SolutionRepository) CountByMiners(ctx context.Context, network string, since time.Time, minerIDs []string) (int64, error) {
	if len(minerIDs) == 0 {
		return 0, nil
	}

	query := `
		SELECT COUNT(*)
		FROM solutions
		WHERE network = $1 AND inserted_at >= $2 AND miner_id = ANY($3)`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, network, since, pq.Array(minerIDs)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count solutions by miners: %w", err)
	}
	return count, nil
}

// CountByMiner counts one miner's accepted solutions since the given time
func (r *SolutionRepository) CountByMiner(ctx context.Context, network, minerID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM solutions
		WHERE network = $1 AND miner_id = $2 AND inserted_at >= $3`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, network, minerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count solutions by miner: %w", err)
	}
	return count, nil
}
