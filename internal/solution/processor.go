package solution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/messaging"
	"github.com/purepool/purepool/internal/wire"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

// Store is the solution persistence the processor needs.
type Store interface {
	ExistsBibleHash(ctx context.Context, bibleHash string) (bool, error)
	Create(ctx context.Context, solution *postgres.Solution) error
	CreateRejected(ctx context.Context, rejected *postgres.RejectedSolution) error
}

// MinerStore is the miner lookup the processor needs.
type MinerStore interface {
	GetByID(ctx context.Context, minerID string) (*postgres.Miner, error)
	MarkAcceptedSolution(ctx context.Context, minerID string, at time.Time) error
}

// Metrics receives per-submission measurements. May be nil.
type Metrics interface {
	WriteSolutionMetric(network, minerID string, hps int64, copies int)
	WriteRejectMetric(network, minerID, reason string)
}

// hashrateWindow is how long a reported hashrate sample stays relevant.
// The stats read side averages over the same window.
const hashrateWindow = 10 * time.Minute

// HashrateCache receives the hashrate samples accepted submissions
// report. May be nil.
type HashrateCache interface {
	SetHashrate(ctx context.Context, network, minerID, workerID string, hashrate float64, window time.Duration) error
}

// ErrDuplicateSubmission is returned when a submission's bible hash is
// already known. The submission leaves no trace beyond a metric.
var ErrDuplicateSubmission = errors.New(errors.ErrorTypeValidation, "process_solution",
	"bible hash already known")

// RejectError reports a submission that failed validation. The rejected
// row is already persisted when this is returned.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return "solution rejected: " + e.Reason.String()
}

// Processor consumes raw submissions for one network and turns them into
// accepted or rejected solution rows.
type Processor struct {
	network    string
	store      Store
	miners     MinerStore
	validator  *Validator
	multiplier *Multiplier
	hashrates  HashrateCache
	metrics    Metrics
	logger     *log.Logger
}

// NewProcessor creates a solution processor for one network.
func NewProcessor(network string, store Store, miners MinerStore, validator *Validator, multiplier *Multiplier, hashrates HashrateCache, metrics Metrics, logger *log.Logger) *Processor {
	return &Processor{
		network:    network,
		store:      store,
		miners:     miners,
		validator:  validator,
		multiplier: multiplier,
		hashrates:  hashrates,
		metrics:    metrics,
		logger:     logger.WithComponent("solution_processor").WithNetwork(network),
	}
}

// Process runs one raw submission through the full pipeline: duplicate
// pre-check, admission multiplier, validation and persistence.
func (p *Processor) Process(ctx context.Context, raw string) error {
	sol, err := wire.ParseSolution(raw)
	if err != nil {
		return err
	}

	// Cheap duplicate pre-check before any daemon round trip. The unique
	// index on bible_hash catches the race this check can lose.
	known, err := p.store.ExistsBibleHash(ctx, sol.BibleHash)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "process_solution",
			"failed to pre-check bible hash")
	}
	if known {
		p.rejectMetric(sol.MinerID, ReasonDuplicateProof)
		return ErrDuplicateSubmission
	}

	miner, err := p.miners.GetByID(ctx, sol.MinerID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "process_solution",
			"failed to load submitting miner").
			WithContext("miner_id", sol.MinerID)
	}

	// The multiplier may drop submissions of over-efficient miners
	// without a trace; the client still got its ok response.
	copies := p.multiplier.Copies(miner.PercentRatio)
	if copies == 0 {
		p.logger.Debug("submission thinned", "miner_id", miner.ID, "percent_ratio", miner.PercentRatio)
		return nil
	}

	work, reason, err := p.validator.Validate(ctx, sol)
	if err != nil {
		return err
	}
	if reason != "" {
		return p.reject(ctx, sol, raw, reason)
	}

	if err := p.accept(ctx, sol, raw, work, copies); err != nil {
		return err
	}

	if err := p.miners.MarkAcceptedSolution(ctx, miner.ID, time.Now()); err != nil {
		p.logger.WithError(err).Warn("failed to mark last accepted solution", "miner_id", miner.ID)
	}

	// Feed the stats page. Samples are keyed per miner; the cache is an
	// accelerator, a write failure costs nothing but a stale graph.
	if p.hashrates != nil && sol.HPS() > 0 {
		if err := p.hashrates.SetHashrate(ctx, p.network, miner.ID, "", float64(sol.HPS()), hashrateWindow); err != nil {
			p.logger.WithError(err).Warn("failed to record hashrate sample", "miner_id", miner.ID)
		}
	}

	p.logger.LogSolutionAccepted(p.network, miner.Address, "", sol.BibleHash, copies)
	if p.metrics != nil {
		p.metrics.WriteSolutionMetric(p.network, miner.ID, sol.HPS(), copies)
	}
	return nil
}

func (p *Processor) accept(ctx context.Context, sol *wire.SolutionString, raw string, work *postgres.Work, copies int) error {
	for n := 1; n <= copies; n++ {
		// Copies beyond the first get a suffixed hash to clear the
		// unique index; they are bookkeeping rows, not real proofs.
		bibleHash := sol.BibleHash
		hps := sol.HPS()
		if n > 1 {
			bibleHash = fmt.Sprintf("%s-x%d", sol.BibleHash, n)
			hps = 0
		}

		record := &postgres.Solution{
			WorkID:    work.ID,
			MinerID:   sol.MinerID,
			Network:   p.network,
			BibleHash: bibleHash,
			Solution:  raw,
			HPS:       hps,
		}

		if err := p.store.Create(ctx, record); err != nil {
			if err == postgres.ErrDuplicateBibleHash {
				p.rejectMetric(sol.MinerID, ReasonDuplicateProof)
				return ErrDuplicateSubmission
			}
			return errors.Wrap(err, errors.ErrorTypeDatabase, "process_solution",
				"failed to store solution").
				WithContext("bible_hash", bibleHash)
		}
	}
	return nil
}

func (p *Processor) reject(ctx context.Context, sol *wire.SolutionString, raw string, reason RejectReason) error {
	record := &postgres.RejectedSolution{
		WorkID:    sol.WorkID,
		MinerID:   sol.MinerID,
		Network:   p.network,
		BibleHash: sol.BibleHash,
		Solution:  raw,
		Reason:    reason.String(),
	}

	if err := p.store.CreateRejected(ctx, record); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "process_solution",
			"failed to store rejected solution").
			WithContext("reason", reason.String())
	}

	p.logger.LogSolutionRejected(p.network, sol.MinerID, "", reason.String())
	p.rejectMetric(sol.MinerID, reason)
	return &RejectError{Reason: reason}
}

func (p *Processor) rejectMetric(minerID string, reason RejectReason) {
	if p.metrics != nil {
		p.metrics.WriteRejectMetric(p.network, minerID, reason.String())
	}
}

// HandleMessage adapts the processor to the Kafka consumer loop. The key
// is unused; routing happens on the message's network field.
func (p *Processor) HandleMessage(ctx context.Context, _ string, value []byte) error {
	var msg messaging.SolutionMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "process_solution",
			"failed to unmarshal solution message")
	}

	if msg.Network != p.network {
		return nil
	}

	err := p.Process(ctx, msg.Solution)
	if err == ErrDuplicateSubmission {
		// Duplicates are routine, not worth failing the message over
		p.logger.Debug("duplicate submission skipped")
		return nil
	}
	if rejected, ok := err.(*RejectError); ok {
		// The rejected row is persisted, the message is fully handled
		p.logger.Debug("submission rejected", "reason", rejected.Reason.String())
		return nil
	}
	return err
}
