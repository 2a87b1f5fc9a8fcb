package block

import (
	"context"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/log"
)

// Discoverer walks the chain and mirrors new heights into the database.
type Discoverer struct {
	network     string
	poolAddress string
	chain       biblepay.ChainClient
	blocks      Store
	miners      MinerStore
	metrics     Metrics
	logger      *log.Logger
}

// NewDiscoverer creates a block discoverer for one network.
func NewDiscoverer(network, poolAddress string, chain biblepay.ChainClient, blocks Store, miners MinerStore, metrics Metrics, logger *log.Logger) *Discoverer {
	return &Discoverer{
		network:     network,
		poolAddress: poolAddress,
		chain:       chain,
		blocks:      blocks,
		miners:      miners,
		metrics:     metrics,
		logger:      logger.WithComponent("block_discovery").WithNetwork(network),
	}
}

// Discover asks the daemon for every height above the highest known one
// and stores what it finds. Returns the number of new blocks. With
// markAsProcessed set, pool blocks are created already finished, which
// is used when pointing a fresh database at a wallet with history. A
// maxHeight above zero stops the walk at that height.
func (d *Discoverer) Discover(ctx context.Context, markAsProcessed bool, maxHeight int64) (int, error) {
	current, known, err := d.blocks.MaxHeight(ctx, d.network)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeDatabase, "discover_blocks",
			"failed to query max known height")
	}

	next := int64(1)
	if known {
		next = current + 1
	}

	found := 0
	for {
		if maxHeight > 0 && next > maxHeight {
			break
		}

		subsidy, err := d.chain.Subsidy(ctx, next)
		if err != nil {
			if err == biblepay.ErrBlockNotFound {
				break
			}
			return found, errors.Wrap(err, errors.ErrorTypeChain, "discover_blocks",
				"failed to query subsidy").
				WithContext("height", next)
		}

		block := d.buildBlock(ctx, next, subsidy, markAsProcessed)
		if err := d.blocks.Create(ctx, block); err != nil {
			return found, errors.Wrap(err, errors.ErrorTypeDatabase, "discover_blocks",
				"failed to store block").
				WithContext("height", next)
		}

		if block.PoolBlock {
			subsidyFloat, _ := block.Subsidy.Float64()
			d.logger.LogBlockFound(d.network, "", block.Height, subsidyFloat)
		}
		if d.metrics != nil {
			subsidyFloat, _ := block.Subsidy.Float64()
			d.metrics.WriteBlockMetric(d.network, block.Height, block.PoolBlock, subsidyFloat)
		}

		found++
		next++
	}

	return found, nil
}

func (d *Discoverer) buildBlock(ctx context.Context, height int64, subsidy *biblepay.SubsidyInfo, markAsProcessed bool) *postgres.Block {
	poolBlock := subsidy.Recipient == d.poolAddress

	// Pool blocks carry the winning miner's guid in the coinbase, which
	// lets the evaluator attribute the block. The guid is client
	// supplied, so it only counts when it resolves to a known miner.
	var minerID *string
	if poolBlock && subsidy.MinerGUID != "" {
		if miner, err := d.miners.GetByID(ctx, subsidy.MinerGUID); err == nil {
			minerID = &miner.ID
		}
	}

	status := postgres.BlockStatusOpen
	if poolBlock && markAsProcessed {
		status = postgres.BlockStatusFinished
	}

	return &postgres.Block{
		Network:       d.network,
		Height:        height,
		PoolBlock:     poolBlock,
		MinerID:       minerID,
		Subsidy:       subsidy.Subsidy,
		Recipient:     subsidy.Recipient,
		Status:        status,
		BlockVersion:  subsidy.BlockVersion,
		BlockVersion2: subsidy.BlockVersion2,
	}
}
