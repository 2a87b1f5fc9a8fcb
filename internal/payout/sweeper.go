package payout

import (
	"context"
	"time"

	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

// WorkStore deletes expired work tickets.
type WorkStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SolutionStore prunes settled solution rows.
type SolutionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRejectedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	BlankPayloadsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper drops works and solutions past the retention window. The
// ledger and block tables are never swept; only the high-volume intake
// tables rotate.
type Sweeper struct {
	retention time.Duration
	works     WorkStore
	solutions SolutionStore
	logger    *log.Logger
}

// NewSweeper creates a sweeper keeping retentionDays of history.
func NewSweeper(retentionDays int, works WorkStore, solutions SolutionStore, logger *log.Logger) *Sweeper {
	return &Sweeper{
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		works:     works,
		solutions: solutions,
		logger:    logger.WithComponent("sweeper"),
	}
}

// Sweep removes rows older than the retention window. Solution payloads
// are blanked half a window earlier than the rows are dropped, so a
// recent solution stays auditable while its bulk is already gone.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)

	works, err := s.works.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "sweep", "failed to delete old works")
	}

	solutions, err := s.solutions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "sweep", "failed to delete old solutions")
	}

	rejected, err := s.solutions.DeleteRejectedOlderThan(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "sweep", "failed to delete old rejected solutions")
	}

	blankCutoff := time.Now().Add(-s.retention / 2)
	blanked, err := s.solutions.BlankPayloadsOlderThan(ctx, blankCutoff)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "sweep", "failed to blank solution payloads")
	}

	if works+solutions+rejected+blanked > 0 {
		s.logger.Info("retention sweep complete",
			"works_deleted", works,
			"solutions_deleted", solutions,
			"rejected_deleted", rejected,
			"payloads_blanked", blanked)
	}
	return nil
}
