// Package work hands out work tickets to miner threads. A ticket carries
// the hash target the solution must beat and ties a later submission back
// to the worker thread it was granted to.
package work

import (
	"context"
	"strings"

	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/errors"
)

// targetPrefix is the leading difficulty pattern of the admission target.
// The full target is this prefix zero-padded to a 256-bit hex string.
// BiblePay pools do not adjust per-miner difficulty; the chain's own
// difficulty gates real blocks and this flat target only rate-limits
// share submissions.
const targetPrefix = "0000011110000000"

// targetLength is the length of a 256-bit hash in hex characters.
const targetLength = 64

// HashTarget returns the flat admission target issued with every ticket.
func HashTarget() string {
	return targetPrefix + strings.Repeat("0", targetLength-len(targetPrefix))
}

// Issuer creates work tickets
type Issuer struct {
	works *postgres.WorkRepository
}

// NewIssuer creates a new work issuer
func NewIssuer(works *postgres.WorkRepository) *Issuer {
	return &Issuer{works: works}
}

// Issue grants a new work ticket to a worker thread. The ticket id is the
// admission proof a later solution must present.
func (i *Issuer) Issue(ctx context.Context, network, workerID, threadID, ip, os, agent string) (*postgres.Work, error) {
	work := &postgres.Work{
		WorkerID:   workerID,
		ThreadID:   threadID,
		Network:    network,
		HashTarget: HashTarget(),
		IP:         ip,
		OS:         os,
		Agent:      agent,
	}

	if err := i.works.Create(ctx, work); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "issue_work",
			"failed to create work ticket").
			WithContext("network", network).
			WithContext("worker_id", workerID)
	}

	return work, nil
}
