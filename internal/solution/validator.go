package solution

import (
	"context"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/wire"
	"github.com/purepool/purepool/pkg/errors"
)

// WorkStore is the work ticket lookup the validator needs.
type WorkStore interface {
	Get(ctx context.Context, workID, network string) (*postgres.Work, error)
}

// Validator runs the ordered submission checks for one network. The
// checks are ordered cheapest first so obviously bad submissions never
// reach the daemon.
type Validator struct {
	network     string
	poolAddress string
	works       WorkStore
	chain       biblepay.ChainClient
}

// NewValidator creates a validator for one network.
func NewValidator(network, poolAddress string, works WorkStore, chain biblepay.ChainClient) *Validator {
	return &Validator{
		network:     network,
		poolAddress: poolAddress,
		works:       works,
		chain:       chain,
	}
}

// Validate checks one parsed submission. It returns the work ticket and
// an empty reason on success, or a non-empty reject reason when the
// submission fails a check. The error return is reserved for
// infrastructure failures where no verdict could be reached.
func (v *Validator) Validate(ctx context.Context, sol *wire.SolutionString) (*postgres.Work, RejectReason, error) {
	// The ticket is the admission proof and carries the hash target
	work, err := v.works.Get(ctx, sol.WorkID, v.network)
	if err != nil {
		if err == postgres.ErrWorkNotFound {
			return nil, ReasonUnknownWork, nil
		}
		return nil, "", errors.Wrap(err, errors.ErrorTypeDatabase, "validate_solution",
			"failed to load work ticket").
			WithContext("work_id", sol.WorkID)
	}

	if !AcceptableHash(sol.BibleHash, work.HashTarget) {
		return work, ReasonTargetExceeded, nil
	}

	// Recompute the proof hash on the daemon from the submitted block
	// parameters. A mismatch means the client lied about its work.
	bibleHash, err := v.chain.BibleHash(ctx, sol.BlockHash, sol.BlockTime, sol.PrevBlockTime, sol.PrevHeight, sol.Nonce)
	if err != nil {
		return work, "", errors.Wrap(err, errors.ErrorTypeChain, "validate_solution",
			"failed to recompute bible hash")
	}
	if bibleHash != sol.BibleHash {
		return work, ReasonProofMismatch, nil
	}

	// The coinbase must pay the pool. Without this check anyone could
	// submit solutions mined for another pool's address.
	coinbase, err := v.chain.HexBlockToCoinbase(ctx, sol.BlockHex, sol.TransactionHex)
	if err != nil {
		return work, ReasonDecodeFailure, nil
	}
	if coinbase.Recipient != v.poolAddress {
		return work, ReasonRecipientMismatch, nil
	}

	// Identity flags only exist on recent daemons. A missing signature
	// flag means the submitting client is too old to be trusted.
	if coinbase.CPIDSigValid == nil {
		return work, ReasonExternalOutdated, nil
	}
	if !*coinbase.CPIDSigValid {
		return work, ReasonIdentityInvalid, nil
	}
	if coinbase.CPIDLegal != nil && !*coinbase.CPIDLegal {
		return work, ReasonIdentityIllegal, nil
	}

	info, err := v.chain.PoolInfo(ctx)
	if err != nil {
		return work, "", errors.Wrap(err, errors.ErrorTypeChain, "validate_solution",
			"failed to query pool info")
	}

	if sol.NonceValue() > info.MaxNonce {
		return work, ReasonReplaySuspected, nil
	}

	if sol.PrevHeightValue() != info.Height {
		return work, ReasonStaleHeight, nil
	}

	return work, "", nil
}
