package block

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
)

// mockChain answers daemon queries from a canned subsidy table.
type mockChain struct {
	subsidies map[int64]*biblepay.SubsidyInfo
	subsidyFn func(ctx context.Context, height int64) (*biblepay.SubsidyInfo, error)
}

func (m *mockChain) Subsidy(ctx context.Context, height int64) (*biblepay.SubsidyInfo, error) {
	if m.subsidyFn != nil {
		return m.subsidyFn(ctx, height)
	}
	subsidy, ok := m.subsidies[height]
	if !ok {
		return nil, biblepay.ErrBlockNotFound
	}
	return subsidy, nil
}

func (m *mockChain) BibleHash(context.Context, string, string, string, string, string) (string, error) {
	return "", nil
}

func (m *mockChain) HexBlockToCoinbase(context.Context, string, string) (*biblepay.CoinbaseInfo, error) {
	return nil, nil
}

func (m *mockChain) PoolInfo(context.Context) (*biblepay.MiningInfo, error) {
	return nil, nil
}

func (m *mockChain) WalletBalance(context.Context) (*biblepay.WalletInfo, error) {
	return nil, nil
}

func (m *mockChain) SendToAddress(context.Context, string, decimal.Decimal, string) (string, error) {
	return "", nil
}

func (m *mockChain) Ping(context.Context) error { return nil }
func (m *mockChain) Close()                     {}

// mockBlocks is an in-memory Store with the same compare-and-swap
// semantics as the real repository.
type mockBlocks struct {
	blocks []*postgres.Block
	nextID int64
}

func (m *mockBlocks) MaxHeight(_ context.Context, network string) (int64, bool, error) {
	var max int64
	found := false
	for _, b := range m.blocks {
		if b.Network == network && b.Height > max {
			max = b.Height
			found = true
		}
	}
	return max, found, nil
}

func (m *mockBlocks) Create(_ context.Context, block *postgres.Block) error {
	m.nextID++
	block.ID = m.nextID
	if block.InsertedAt.IsZero() {
		block.InsertedAt = time.Now()
	}
	m.blocks = append(m.blocks, block)
	return nil
}

func (m *mockBlocks) oldestInStatus(network, status string, before *time.Time) *postgres.Block {
	var candidates []*postgres.Block
	for _, b := range m.blocks {
		if b.Network == network && b.PoolBlock && b.Status == status {
			if before != nil && !b.InsertedAt.Before(*before) {
				continue
			}
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Height < candidates[j].Height })
	return candidates[0]
}

func (m *mockBlocks) OldestOpenPoolBlock(_ context.Context, network string) (*postgres.Block, error) {
	return m.oldestInStatus(network, postgres.BlockStatusOpen, nil), nil
}

func (m *mockBlocks) OldestMaturedBlock(_ context.Context, network string, before time.Time) (*postgres.Block, error) {
	return m.oldestInStatus(network, postgres.BlockStatusBasicsProcessed, &before), nil
}

func (m *mockBlocks) ClaimStatus(_ context.Context, blockID int64, from, to string) (bool, error) {
	for _, b := range m.blocks {
		if b.ID == blockID && b.Status == from {
			b.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBlocks) SetStatus(_ context.Context, blockID int64, status string) error {
	for _, b := range m.blocks {
		if b.ID == blockID {
			b.Status = status
		}
	}
	return nil
}

func (m *mockBlocks) CountInStatus(_ context.Context, network, status string) (int64, error) {
	var count int64
	for _, b := range m.blocks {
		if b.Network == network && b.PoolBlock && b.Status == status {
			count++
		}
	}
	return count, nil
}

// mockSolutions is an in-memory SolutionStore.
type mockSolutions struct {
	solutions []*postgres.Solution
}

func (m *mockSolutions) AssignToBlock(_ context.Context, network string, blockID int64, before time.Time) (int64, error) {
	var assigned int64
	for _, s := range m.solutions {
		if s.Network == network && !s.Processed && s.BlockID == nil && s.InsertedAt.Before(before) {
			id := blockID
			s.BlockID = &id
			assigned++
		}
	}
	return assigned, nil
}

func (m *mockSolutions) ShareCounts(_ context.Context, network string, blockID int64, onlyUnprocessed bool) ([]postgres.MinerShareCount, error) {
	totals := make(map[string]int64)
	for _, s := range m.solutions {
		if s.Network != network || s.BlockID == nil || *s.BlockID != blockID || s.Ignore {
			continue
		}
		if onlyUnprocessed && s.Processed {
			continue
		}
		totals[s.MinerID]++
	}

	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	counts := make([]postgres.MinerShareCount, 0, len(ids))
	for _, id := range ids {
		counts = append(counts, postgres.MinerShareCount{MinerID: id, Count: totals[id]})
	}
	return counts, nil
}

func (m *mockSolutions) MarkProcessed(_ context.Context, network string, blockID int64) error {
	for _, s := range m.solutions {
		if s.Network == network && s.BlockID != nil && *s.BlockID == blockID {
			s.Processed = true
		}
	}
	return nil
}

// mockLedger is an in-memory LedgerStore.
type mockLedger struct {
	transactions []*postgres.Transaction
}

func (m *mockLedger) Create(_ context.Context, tx *postgres.Transaction) error {
	tx.ID = int64(len(m.transactions) + 1)
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *mockLedger) SumByMiner(_ context.Context, network, minerID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range m.transactions {
		if tx.Network == network && tx.MinerID == minerID {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

// mockMiners is an in-memory MinerStore.
type mockMiners struct {
	byID     map[string]*postgres.Miner
	balances map[string]decimal.Decimal
}

func (m *mockMiners) GetByID(_ context.Context, minerID string) (*postgres.Miner, error) {
	miner, ok := m.byID[minerID]
	if !ok {
		return nil, postgres.ErrMinerNotFound
	}
	return miner, nil
}

func (m *mockMiners) UpdateBalance(_ context.Context, _, minerID string, balance decimal.Decimal) error {
	if m.balances == nil {
		m.balances = make(map[string]decimal.Decimal)
	}
	m.balances[minerID] = balance
	return nil
}
