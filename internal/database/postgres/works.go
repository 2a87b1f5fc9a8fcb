package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrWorkNotFound is returned when a work ticket lookup matches no row.
var ErrWorkNotFound = fmt.Errorf("work not found")

// WorkRepository handles work ticket database operations
type WorkRepository struct {
	db *sql.DB
}

// NewWorkRepository creates a new work repository
func NewWorkRepository(db *sql.DB) *WorkRepository {
	return &WorkRepository{db: db}
}

// Create inserts a new work ticket. A uuid id is generated when the
// caller did not set one; the id must be unguessable since a solution
// referencing a ticket is the admission proof.
func (r *WorkRepository) Create(ctx context.Context, work *Work) error {
	if work.ID == "" {
		work.ID = uuid.NewString()
	}

	query := `
		INSERT INTO works (id, worker_id, thread_id, network, hash_target, ip, os, agent, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		work.ID, work.WorkerID, work.ThreadID, work.Network,
		work.HashTarget, work.IP, work.OS, work.Agent, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create work: %w", err)
	}

	work.InsertedAt = now
	return nil
}

// Get retrieves a work ticket by id, scoped to a network. A ticket from
// another network must look exactly like a missing ticket.
func (r *WorkRepository) Get(ctx context.Context, workID, network string) (*Work, error) {
	query := `
		SELECT id, worker_id, thread_id, network, hash_target, ip, os, agent, inserted_at
		FROM works
		WHERE id = $1 AND network = $2`

	work := &Work{}
	err := r.db.QueryRowContext(ctx, query, workID, network).Scan(
		&work.ID, &work.WorkerID, &work.ThreadID, &work.Network,
		&work.HashTarget, &work.IP, &work.OS, &work.Agent, &work.InsertedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWorkNotFound
		}
		return nil, fmt.Errorf("failed to get work: %w", err)
	}

	return work, nil
}

// DeleteOlderThan purges work tickets created before the cutoff
func (r *WorkRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM works WHERE inserted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old works: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted works: %w", err)
	}
	return deleted, nil
}
