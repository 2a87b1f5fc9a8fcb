package block

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

var oneHundred = decimal.NewFromInt(100)

// Settler moves pool blocks through their lifecycle after discovery:
// assigning solutions, waiting for maturity and crediting the subsidy
// proportionally to the contributing miners.
type Settler struct {
	network     string
	poolAddress string
	matureAfter time.Duration
	feePercent  decimal.Decimal

	chain     biblepay.ChainClient
	blocks    Store
	solutions SolutionStore
	ledger    LedgerStore
	miners    MinerStore
	metrics   Metrics
	logger    *log.Logger
}

// NewSettler creates a settler for one network.
func NewSettler(network, poolAddress string, matureAfter time.Duration, feePercent decimal.Decimal,
	chain biblepay.ChainClient, blocks Store, solutions SolutionStore, ledger LedgerStore,
	miners MinerStore, metrics Metrics, logger *log.Logger) *Settler {
	return &Settler{
		network:     network,
		poolAddress: poolAddress,
		matureAfter: matureAfter,
		feePercent:  feePercent,
		chain:       chain,
		blocks:      blocks,
		solutions:   solutions,
		ledger:      ledger,
		miners:      miners,
		metrics:     metrics,
		logger:      logger.WithComponent("block_settlement").WithNetwork(network),
	}
}

// ProcessNextBlock takes the oldest open pool block and attaches every
// unassigned solution inserted before the block to it. One block per
// call; the block then waits for maturity before settlement.
func (s *Settler) ProcessNextBlock(ctx context.Context) error {
	block, err := s.blocks.OldestOpenPoolBlock(ctx, s.network)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "process_block",
			"failed to find open pool block")
	}
	if block == nil {
		return nil
	}

	// Claiming the status first keeps a concurrent runner off the block
	claimed, err := s.blocks.ClaimStatus(ctx, block.ID, postgres.BlockStatusOpen, postgres.BlockStatusBasicsProcessed)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "process_block",
			"failed to claim block").
			WithContext("height", block.Height)
	}
	if !claimed {
		return nil
	}

	assigned, err := s.solutions.AssignToBlock(ctx, s.network, block.ID, block.InsertedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "process_block",
			"failed to assign solutions").
			WithContext("height", block.Height)
	}

	s.logger.Info("block basics processed", "height", block.Height, "solutions_assigned", assigned)
	return nil
}

// Shareout settles the oldest matured pool block: it re-verifies that the
// chain still pays the pool, splits the subsidy after fee across the
// block's solutions and credits each miner's ledger. With dryRun set
// nothing is written; the would-be credits are only logged.
func (s *Settler) Shareout(ctx context.Context, dryRun bool) error {
	// Only one block settles at a time
	if !dryRun {
		inFlight, err := s.blocks.CountInStatus(ctx, s.network, postgres.BlockStatusProcessingShares)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
				"failed to count in-flight blocks")
		}
		if inFlight > 0 {
			return nil
		}
	}

	cutoff := time.Now().Add(-s.matureAfter)
	block, err := s.blocks.OldestMaturedBlock(ctx, s.network, cutoff)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
			"failed to find matured block")
	}
	if block == nil {
		return nil
	}

	if !dryRun {
		claimed, err := s.blocks.ClaimStatus(ctx, block.ID, postgres.BlockStatusBasicsProcessed, postgres.BlockStatusProcessingShares)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
				"failed to claim block").
				WithContext("height", block.Height)
		}
		if !claimed {
			return nil
		}
	}

	// The chain may have reorganized since discovery. If the block no
	// longer pays the pool its shares must never settle.
	subsidy, err := s.chain.Subsidy(ctx, block.Height)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeChain, "shareout",
			"failed to re-verify block").
			WithContext("height", block.Height)
	}
	if subsidy.Recipient != s.poolAddress {
		s.logger.Warn("block went stale", "height", block.Height, "recipient", subsidy.Recipient)
		if !dryRun {
			if err := s.blocks.SetStatus(ctx, block.ID, postgres.BlockStatusStale); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
					"failed to mark block stale").
					WithContext("height", block.Height)
			}
		}
		return nil
	}

	counts, err := s.solutions.ShareCounts(ctx, s.network, block.ID, !dryRun)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
			"failed to tally shares").
			WithContext("height", block.Height)
	}

	var totalShares int64
	for _, c := range counts {
		totalShares += c.Count
	}

	// Nothing to distribute: the block still finishes so it never blocks
	// the queue.
	if totalShares == 0 || block.Subsidy.IsZero() {
		if !dryRun {
			if err := s.blocks.SetStatus(ctx, block.ID, postgres.BlockStatusFinished); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
					"failed to finish empty block").
					WithContext("height", block.Height)
			}
		}
		s.logger.Info("block finished without distribution", "height", block.Height, "shares", totalShares)
		return nil
	}

	minerSubsidy := block.Subsidy
	if s.feePercent.IsPositive() {
		minerSubsidy = block.Subsidy.Sub(block.Subsidy.Div(oneHundred).Mul(s.feePercent))
	}

	perSolution := minerSubsidy.Div(decimal.NewFromInt(totalShares))

	distributed := decimal.Zero
	for _, c := range counts {
		amount := perSolution.Mul(decimal.NewFromInt(c.Count))

		tx := &postgres.Transaction{
			Network:      s.network,
			MinerID:      c.MinerID,
			Amount:       amount,
			Category:     postgres.TxCategoryMiningShare,
			Note:         fmt.Sprintf("Share for block %d", block.Height),
			InternalNote: fmt.Sprintf("BLOCK:%d|SOLUTIONS:%d", block.Height, c.Count),
		}

		if dryRun {
			s.logger.Info("dry run credit", "miner_id", c.MinerID, "amount", amount, "solutions", c.Count)
		} else if err := s.ledger.Create(ctx, tx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
				"failed to credit miner").
				WithContext("miner_id", c.MinerID).
				WithContext("height", block.Height)
		}

		distributed = distributed.Add(amount)
	}

	if !dryRun {
		if err := s.solutions.MarkProcessed(ctx, s.network, block.ID); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
				"failed to mark solutions processed").
				WithContext("height", block.Height)
		}
		if err := s.blocks.SetStatus(ctx, block.ID, postgres.BlockStatusFinished); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "shareout",
				"failed to finish block").
				WithContext("height", block.Height)
		}

		// Balances refresh after settlement; the ledger stays the source
		// of truth if this trailing step fails.
		for _, c := range counts {
			balance, err := s.ledger.SumByMiner(ctx, s.network, c.MinerID)
			if err != nil {
				s.logger.WithError(err).Warn("failed to recompute balance", "miner_id", c.MinerID)
				continue
			}
			if err := s.miners.UpdateBalance(ctx, s.network, c.MinerID, balance); err != nil {
				s.logger.WithError(err).Warn("failed to update balance", "miner_id", c.MinerID)
			}
		}
	}

	s.logger.LogShareout(s.network, block.Height, totalShares, len(counts))
	if s.metrics != nil {
		distributedFloat, _ := distributed.Float64()
		s.metrics.WriteShareoutMetric(s.network, block.Height, totalShares, len(counts), distributedFloat)
	}
	return nil
}
