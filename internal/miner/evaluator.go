package miner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

// evaluationWindow is how far back the evaluator looks when comparing
// miners against the pool average.
const evaluationWindow = 24 * time.Hour

// SolutionCounter is the solution statistics the evaluator needs.
type SolutionCounter interface {
	MinerSolutionCounts(ctx context.Context, network string, since time.Time) ([]postgres.MinerShareCount, error)
	CountByMiners(ctx context.Context, network string, since time.Time, minerIDs []string) (int64, error)
	CountByMiner(ctx context.Context, network, minerID string, since time.Time) (int64, error)
}

// BlockCounter is the block statistics the evaluator needs.
type BlockCounter interface {
	CountPoolBlocksSince(ctx context.Context, network string, since time.Time) (int64, error)
	MinerBlockCounts(ctx context.Context, network string, since time.Time) ([]postgres.MinerShareCount, error)
	CountBlocksByMiner(ctx context.Context, network, minerID string, since time.Time) (int64, error)
}

// RatingStore is the miner mutation surface the evaluator needs.
type RatingStore interface {
	ResetRatings(ctx context.Context, network string) error
	UpdateRating(ctx context.Context, minerID string, rating int, percentRatio decimal.Decimal) error
}

// Evaluator periodically rates miners by comparing their shares-per-block
// efficiency with that of the miners who actually found blocks. The
// resulting percent ratio drives the admission multiplier; the rating is
// a coarse bucket kept for statistics pages.
type Evaluator struct {
	solutions SolutionCounter
	blocks    BlockCounter
	miners    RatingStore
	logger    *log.Logger
}

// NewEvaluator creates a miner evaluator.
func NewEvaluator(solutions SolutionCounter, blocks BlockCounter, miners RatingStore, logger *log.Logger) *Evaluator {
	return &Evaluator{
		solutions: solutions,
		blocks:    blocks,
		miners:    miners,
		logger:    logger.WithComponent("miner_evaluator"),
	}
}

// Evaluate recomputes ratings for every miner with recent shares on one
// network. Ratings reset to neutral first so miners without recent
// activity do not keep a stale score.
func (e *Evaluator) Evaluate(ctx context.Context, network string) error {
	since := time.Now().Add(-evaluationWindow)

	active, err := e.solutions.MinerSolutionCounts(ctx, network, since)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
			"failed to load active miners")
	}

	if err := e.miners.ResetRatings(ctx, network); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
			"failed to reset ratings")
	}

	poolBlocks, err := e.blocks.CountPoolBlocksSince(ctx, network, since)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
			"failed to count pool blocks")
	}
	if poolBlocks == 0 {
		e.logger.Info("no pool blocks in evaluation window, skipping", "network", network)
		return nil
	}

	// The baseline is the efficiency of the miners who actually won
	// blocks, not of the whole pool.
	winners, err := e.blocks.MinerBlockCounts(ctx, network, since)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
			"failed to load block winners")
	}

	winnerIDs := make([]string, 0, len(winners))
	for _, w := range winners {
		winnerIDs = append(winnerIDs, w.MinerID)
	}

	poolSolutions, err := e.solutions.CountByMiners(ctx, network, since, winnerIDs)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
			"failed to count winner solutions")
	}

	// Solutions per block of the winning miners
	ratio := float64(poolSolutions) / float64(poolBlocks)
	if ratio == 0 {
		e.logger.Info("block winners submitted no solutions, skipping", "network", network)
		return nil
	}

	for _, m := range active {
		minerBlocks, err := e.blocks.CountBlocksByMiner(ctx, network, m.MinerID, since)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
				"failed to count miner blocks").
				WithContext("miner_id", m.MinerID)
		}

		minerSolutions, err := e.solutions.CountByMiner(ctx, network, m.MinerID, since)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
				"failed to count miner solutions").
				WithContext("miner_id", m.MinerID)
		}

		minerRatio := float64(minerSolutions)
		if minerBlocks > 0 {
			minerRatio = float64(minerSolutions) / float64(minerBlocks)
		}

		percentDiff := (100 / ratio) * minerRatio
		rating := ratingFor(percentDiff, minerBlocks)

		if err := e.miners.UpdateRating(ctx, m.MinerID, rating, decimal.NewFromFloat(percentDiff)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "evaluate_miners",
				"failed to update rating").
				WithContext("miner_id", m.MinerID)
		}

		e.logger.Debug("miner evaluated",
			"network", network,
			"miner_id", m.MinerID,
			"solutions", minerSolutions,
			"blocks", minerBlocks,
			"percent_diff", percentDiff,
			"rating", rating,
		)
	}

	e.logger.Info("miner evaluation finished",
		"network", network,
		"miners", len(active),
		"pool_blocks", poolBlocks,
		"pool_ratio", ratio,
	)
	return nil
}

// ratingFor buckets a miner's efficiency deviation into the coarse
// rating scale. Lower is better.
func ratingFor(percentDiff float64, minerBlocks int64) int {
	rating := 0

	if percentDiff < 50 {
		rating = -1
	}
	if percentDiff < 20 {
		rating = -2
	}
	if percentDiff > 120 {
		rating = 1
	}
	if percentDiff > 250 {
		rating = 2
	}
	if percentDiff > 400 {
		rating = 3
	}

	// Small miners that never found a block but have few shares are not
	// penalized for the missing denominator.
	if minerBlocks == 0 && percentDiff < 50 {
		rating = 0
	}

	return rating
}
