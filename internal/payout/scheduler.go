// Package payout sends accumulated balances to miner addresses and
// prunes aged rows from the hot tables.
package payout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

// MinerStore lists payout candidates.
type MinerStore interface {
	AboveBalance(ctx context.Context, network string, minimum decimal.Decimal) ([]*postgres.Miner, error)
}

// LedgerStore reads and appends the miner ledger around a payout.
type LedgerStore interface {
	SumByMiner(ctx context.Context, network, minerID string) (decimal.Decimal, error)
	CountRecentPayouts(ctx context.Context, network, minerID string, since time.Time) (int64, error)
	RecordPayout(ctx context.Context, tx *postgres.Transaction) error
	CreateError(ctx context.Context, txErr *postgres.TransactionError) error
}

// Metrics records payout outcomes. A nil Metrics disables recording.
type Metrics interface {
	WritePayoutMetric(network, minerID string, amount float64, status string)
}

// Scheduler pays miners whose balance crossed the network minimum. Sends
// go through the wallet one at a time, throttled, and every outcome
// lands in the ledger before the next send starts.
type Scheduler struct {
	network   string
	minimum   decimal.Decimal
	holdback  time.Duration
	batchSize int

	chain   biblepay.ChainClient
	miners  MinerStore
	ledger  LedgerStore
	metrics Metrics
	limiter ratelimit.Limiter
	logger  *log.Logger
}

// NewScheduler creates a payout scheduler for one network. sendsPerMinute
// caps the wallet send rate across a run.
func NewScheduler(network string, minimum decimal.Decimal, holdback time.Duration, batchSize, sendsPerMinute int,
	chain biblepay.ChainClient, miners MinerStore, ledger LedgerStore, metrics Metrics, logger *log.Logger) *Scheduler {
	return &Scheduler{
		network:   network,
		minimum:   minimum,
		holdback:  holdback,
		batchSize: batchSize,
		chain:     chain,
		miners:    miners,
		ledger:    ledger,
		metrics:   metrics,
		limiter:   ratelimit.New(sendsPerMinute, ratelimit.Per(time.Minute)),
		logger:    logger.WithComponent("payout").WithNetwork(network),
	}
}

// Run pays out one batch of eligible miners. A miner is eligible when
// its ledger balance exceeds the minimum and it received no payout
// inside the holdback window. Returns the number of successful sends.
//
// A failed send is recorded and skipped, never retried inside the run;
// the wallet may have broadcast the transaction even when the RPC
// errored, so retrying risks paying twice.
func (s *Scheduler) Run(ctx context.Context) (int, error) {
	candidates, err := s.miners.AboveBalance(ctx, s.network, s.minimum)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeDatabase, "payout",
			"failed to list payout candidates")
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	wallet, err := s.chain.WalletBalance(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChain, "payout",
			"failed to query wallet balance")
	}
	funds := wallet.Balance

	sent := 0
	for _, miner := range candidates {
		if sent >= s.batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if funds.LessThanOrEqual(s.minimum) {
			s.logger.Warn("wallet exhausted, stopping payout run", "remaining", funds)
			break
		}

		paid, err := s.payMiner(ctx, miner, funds)
		if err != nil {
			return sent, err
		}
		if paid.IsPositive() {
			funds = funds.Sub(paid)
			sent++
		}
	}

	return sent, nil
}

// payMiner pays one miner and returns the amount sent, zero when the
// miner was skipped or the send failed.
func (s *Scheduler) payMiner(ctx context.Context, miner *postgres.Miner, funds decimal.Decimal) (decimal.Decimal, error) {
	since := time.Now().Add(-s.holdback)
	recent, err := s.ledger.CountRecentPayouts(ctx, s.network, miner.ID, since)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, errors.ErrorTypeDatabase, "payout",
			"failed to check recent payouts").
			WithContext("miner_id", miner.ID)
	}
	if recent > 0 {
		return decimal.Zero, nil
	}

	// The cached balance on the miner row is only a candidate filter;
	// the amount sent always comes from the ledger.
	balance, err := s.ledger.SumByMiner(ctx, s.network, miner.ID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, errors.ErrorTypeDatabase, "payout",
			"failed to compute balance").
			WithContext("miner_id", miner.ID)
	}
	if balance.LessThanOrEqual(s.minimum) {
		return decimal.Zero, nil
	}
	if balance.GreaterThan(funds) {
		s.logger.Warn("wallet cannot cover payout",
			"miner_id", miner.ID, "amount", balance, "remaining", funds)
		return decimal.Zero, nil
	}

	s.limiter.Take()

	txID, err := s.chain.SendToAddress(ctx, miner.Address, balance, "Pool payment")
	if err != nil {
		s.logger.WithError(err).Error("payout send failed",
			"miner_id", miner.ID, "address", miner.Address, "amount", balance)
		if recordErr := s.ledger.CreateError(ctx, &postgres.TransactionError{
			Network:      s.network,
			MinerID:      miner.ID,
			Amount:       balance.Neg(),
			ErrorMessage: err.Error(),
		}); recordErr != nil {
			s.logger.WithError(recordErr).Error("failed to record payout error", "miner_id", miner.ID)
		}
		if s.metrics != nil {
			amount, _ := balance.Float64()
			s.metrics.WritePayoutMetric(s.network, miner.ID, amount, "failed")
		}
		return decimal.Zero, nil
	}

	tx := &postgres.Transaction{
		Network:      s.network,
		MinerID:      miner.ID,
		Amount:       balance.Neg(),
		Category:     postgres.TxCategoryOutgoing,
		Note:         "Autosend",
		InternalNote: "TX_ID:" + txID,
		TxID:         txID,
	}
	if err := s.ledger.RecordPayout(ctx, tx); err != nil {
		// The coins left the wallet but the ledger write failed. This is
		// the one state that needs an operator, so it fails the run loudly.
		return decimal.Zero, errors.Wrap(err, errors.ErrorTypeDatabase, "payout",
			"sent payout but failed to record it").
			WithContext("miner_id", miner.ID).
			WithContext("tx_id", txID)
	}

	amount, _ := balance.Float64()
	s.logger.LogPayout(s.network, miner.Address, txID, amount)
	if s.metrics != nil {
		s.metrics.WritePayoutMetric(s.network, miner.ID, amount, "sent")
	}
	return balance, nil
}
