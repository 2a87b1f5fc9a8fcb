package block

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/log"
)

const (
	testNetwork     = "main"
	testPoolAddress = "BPoo1Address111111111111111111111a"
)

func testLogger() *log.Logger {
	return log.New("test", "test", "error", "text")
}

func subsidyFor(recipient string) *biblepay.SubsidyInfo {
	return &biblepay.SubsidyInfo{
		Subsidy:   decimal.NewFromInt(100),
		Recipient: recipient,
	}
}

func TestDiscoverWalksFromGenesis(t *testing.T) {
	chain := &mockChain{subsidies: map[int64]*biblepay.SubsidyInfo{
		1: subsidyFor("BSomeoneElse11111111111111111111aa"),
		2: subsidyFor(testPoolAddress),
		3: subsidyFor("BSomeoneElse11111111111111111111aa"),
	}}
	blocks := &mockBlocks{}
	miners := &mockMiners{byID: map[string]*postgres.Miner{}}

	d := NewDiscoverer(testNetwork, testPoolAddress, chain, blocks, miners, nil, testLogger())

	found, err := d.Discover(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, found)

	require.Len(t, blocks.blocks, 3)
	assert.False(t, blocks.blocks[0].PoolBlock)
	assert.True(t, blocks.blocks[1].PoolBlock)
	assert.Equal(t, postgres.BlockStatusOpen, blocks.blocks[1].Status)
	assert.Equal(t, int64(2), blocks.blocks[1].Height)
}

func TestDiscoverResumesFromKnownHeight(t *testing.T) {
	chain := &mockChain{subsidies: map[int64]*biblepay.SubsidyInfo{
		5: subsidyFor(testPoolAddress),
		6: subsidyFor(testPoolAddress),
	}}
	blocks := &mockBlocks{}
	require.NoError(t, blocks.Create(context.Background(), &postgres.Block{
		Network: testNetwork, Height: 4, Status: postgres.BlockStatusFinished,
	}))
	miners := &mockMiners{byID: map[string]*postgres.Miner{}}

	d := NewDiscoverer(testNetwork, testPoolAddress, chain, blocks, miners, nil, testLogger())

	found, err := d.Discover(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, found)
	assert.Len(t, blocks.blocks, 3)
}

func TestDiscoverStopsAtMaxHeight(t *testing.T) {
	chain := &mockChain{subsidies: map[int64]*biblepay.SubsidyInfo{
		1: subsidyFor(testPoolAddress),
		2: subsidyFor(testPoolAddress),
		3: subsidyFor(testPoolAddress),
	}}
	blocks := &mockBlocks{}
	miners := &mockMiners{byID: map[string]*postgres.Miner{}}

	d := NewDiscoverer(testNetwork, testPoolAddress, chain, blocks, miners, nil, testLogger())

	found, err := d.Discover(context.Background(), false, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, found)
}

func TestDiscoverMarkAsProcessed(t *testing.T) {
	chain := &mockChain{subsidies: map[int64]*biblepay.SubsidyInfo{
		1: subsidyFor(testPoolAddress),
		2: subsidyFor("BSomeoneElse11111111111111111111aa"),
	}}
	blocks := &mockBlocks{}
	miners := &mockMiners{byID: map[string]*postgres.Miner{}}

	d := NewDiscoverer(testNetwork, testPoolAddress, chain, blocks, miners, nil, testLogger())

	_, err := d.Discover(context.Background(), true, 0)
	require.NoError(t, err)

	// Historical pool blocks skip the settlement queue entirely; foreign
	// blocks keep the open status since they never settle anyway.
	assert.Equal(t, postgres.BlockStatusFinished, blocks.blocks[0].Status)
	assert.Equal(t, postgres.BlockStatusOpen, blocks.blocks[1].Status)
}

func TestDiscoverAttributesWinningMiner(t *testing.T) {
	subsidy := subsidyFor(testPoolAddress)
	subsidy.MinerGUID = "miner-1"

	chain := &mockChain{subsidies: map[int64]*biblepay.SubsidyInfo{1: subsidy}}
	blocks := &mockBlocks{}
	miners := &mockMiners{byID: map[string]*postgres.Miner{
		"miner-1": {ID: "miner-1", Network: testNetwork},
	}}

	d := NewDiscoverer(testNetwork, testPoolAddress, chain, blocks, miners, nil, testLogger())

	_, err := d.Discover(context.Background(), false, 0)
	require.NoError(t, err)

	require.NotNil(t, blocks.blocks[0].MinerID)
	assert.Equal(t, "miner-1", *blocks.blocks[0].MinerID)
}

func TestDiscoverIgnoresUnknownMinerGUID(t *testing.T) {
	subsidy := subsidyFor(testPoolAddress)
	subsidy.MinerGUID = "no-such-miner"

	chain := &mockChain{subsidies: map[int64]*biblepay.SubsidyInfo{1: subsidy}}
	blocks := &mockBlocks{}
	miners := &mockMiners{byID: map[string]*postgres.Miner{}}

	d := NewDiscoverer(testNetwork, testPoolAddress, chain, blocks, miners, nil, testLogger())

	_, err := d.Discover(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Nil(t, blocks.blocks[0].MinerID)
}
