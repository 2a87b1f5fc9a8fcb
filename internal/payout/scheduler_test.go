package payout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purepool/purepool/internal/biblepay"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/log"
)

const testNetwork = "main"

func testLogger() *log.Logger {
	return log.New("test", "test", "error", "text")
}

type mockChain struct {
	sendFn func(ctx context.Context, address string, amount decimal.Decimal, comment string) (string, error)
	wallet decimal.Decimal
	sends  []string
}

func (m *mockChain) SendToAddress(ctx context.Context, address string, amount decimal.Decimal, comment string) (string, error) {
	m.sends = append(m.sends, address)
	if m.sendFn != nil {
		return m.sendFn(ctx, address, amount, comment)
	}
	return fmt.Sprintf("txid-%d", len(m.sends)), nil
}

func (m *mockChain) Subsidy(context.Context, int64) (*biblepay.SubsidyInfo, error) { return nil, nil }
func (m *mockChain) BibleHash(context.Context, string, string, string, string, string) (string, error) {
	return "", nil
}
func (m *mockChain) HexBlockToCoinbase(context.Context, string, string) (*biblepay.CoinbaseInfo, error) {
	return nil, nil
}
func (m *mockChain) PoolInfo(context.Context) (*biblepay.MiningInfo, error) { return nil, nil }

func (m *mockChain) WalletBalance(context.Context) (*biblepay.WalletInfo, error) {
	balance := m.wallet
	if balance.IsZero() {
		balance = decimal.NewFromInt(1000000)
	}
	return &biblepay.WalletInfo{Balance: balance}, nil
}

func (m *mockChain) Ping(context.Context) error { return nil }
func (m *mockChain) Close()                     {}

type mockMiners struct {
	miners []*postgres.Miner
}

func (m *mockMiners) AboveBalance(_ context.Context, network string, minimum decimal.Decimal) ([]*postgres.Miner, error) {
	var out []*postgres.Miner
	for _, miner := range m.miners {
		if miner.Network == network && miner.Balance.GreaterThan(minimum) {
			out = append(out, miner)
		}
	}
	return out, nil
}

type mockLedger struct {
	balances   map[string]decimal.Decimal
	lastPayout map[string]time.Time
	payouts    []*postgres.Transaction
	errors     []*postgres.TransactionError
}

func (m *mockLedger) SumByMiner(_ context.Context, _, minerID string) (decimal.Decimal, error) {
	return m.balances[minerID], nil
}

func (m *mockLedger) CountRecentPayouts(_ context.Context, _, minerID string, since time.Time) (int64, error) {
	if at, ok := m.lastPayout[minerID]; ok && at.After(since) {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLedger) RecordPayout(_ context.Context, tx *postgres.Transaction) error {
	m.payouts = append(m.payouts, tx)
	m.balances[tx.MinerID] = m.balances[tx.MinerID].Add(tx.Amount)
	return nil
}

func (m *mockLedger) CreateError(_ context.Context, txErr *postgres.TransactionError) error {
	m.errors = append(m.errors, txErr)
	return nil
}

func miner(id string, balance int64) *postgres.Miner {
	return &postgres.Miner{
		ID:      id,
		Network: testNetwork,
		Address: "B" + id + "Address11111111111111111111aa",
		Balance: decimal.NewFromInt(balance),
	}
}

func testScheduler(chain *mockChain, miners *mockMiners, ledger *mockLedger) *Scheduler {
	return NewScheduler(testNetwork, decimal.NewFromInt(1), 12*time.Hour, 10, 6000,
		chain, miners, ledger, nil, testLogger())
}

func TestRunPaysEligibleMiner(t *testing.T) {
	chain := &mockChain{}
	miners := &mockMiners{miners: []*postgres.Miner{miner("miner-a", 50)}}
	ledger := &mockLedger{balances: map[string]decimal.Decimal{"miner-a": decimal.NewFromInt(50)}}

	s := testScheduler(chain, miners, ledger)
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, ledger.payouts, 1)
	tx := ledger.payouts[0]
	assert.Equal(t, "miner-a", tx.MinerID)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(-50)), "got %s", tx.Amount)
	assert.Equal(t, postgres.TxCategoryOutgoing, tx.Category)
	assert.Equal(t, "Autosend", tx.Note)
	assert.Equal(t, "TX_ID:txid-1", tx.InternalNote)
	assert.Equal(t, "txid-1", tx.TxID)

	// Debited to zero
	assert.True(t, ledger.balances["miner-a"].IsZero())
}

func TestRunSkipsRecentlyPaidMiner(t *testing.T) {
	chain := &mockChain{}
	miners := &mockMiners{miners: []*postgres.Miner{miner("miner-a", 50)}}
	ledger := &mockLedger{
		balances:   map[string]decimal.Decimal{"miner-a": decimal.NewFromInt(50)},
		lastPayout: map[string]time.Time{"miner-a": time.Now().Add(-time.Hour)},
	}

	s := testScheduler(chain, miners, ledger)
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, chain.sends)
}

func TestRunPaysAfterHoldbackExpires(t *testing.T) {
	chain := &mockChain{}
	miners := &mockMiners{miners: []*postgres.Miner{miner("miner-a", 50)}}
	ledger := &mockLedger{
		balances:   map[string]decimal.Decimal{"miner-a": decimal.NewFromInt(50)},
		lastPayout: map[string]time.Time{"miner-a": time.Now().Add(-13 * time.Hour)},
	}

	s := testScheduler(chain, miners, ledger)
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRunUsesLedgerBalanceNotCachedOne(t *testing.T) {
	chain := &mockChain{}
	// Cached balance says 50 but the ledger only holds 0.5, below minimum
	miners := &mockMiners{miners: []*postgres.Miner{miner("miner-a", 50)}}
	ledger := &mockLedger{balances: map[string]decimal.Decimal{
		"miner-a": decimal.NewFromFloat(0.5),
	}}

	s := testScheduler(chain, miners, ledger)
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, chain.sends)
}

func TestRunRecordsFailedSendAndContinues(t *testing.T) {
	chain := &mockChain{sendFn: func(_ context.Context, address string, _ decimal.Decimal, _ string) (string, error) {
		if address == miner("miner-a", 0).Address {
			return "", fmt.Errorf("wallet is locked")
		}
		return "txid-ok", nil
	}}
	miners := &mockMiners{miners: []*postgres.Miner{miner("miner-a", 50), miner("miner-b", 30)}}
	ledger := &mockLedger{balances: map[string]decimal.Decimal{
		"miner-a": decimal.NewFromInt(50),
		"miner-b": decimal.NewFromInt(30),
	}}

	s := testScheduler(chain, miners, ledger)
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// The failure landed in the error table with the attempted debit
	require.Len(t, ledger.errors, 1)
	assert.Equal(t, "miner-a", ledger.errors[0].MinerID)
	assert.True(t, ledger.errors[0].Amount.Equal(decimal.NewFromInt(-50)))
	assert.Equal(t, "wallet is locked", ledger.errors[0].ErrorMessage)

	// The failed miner's ledger was not debited
	assert.True(t, ledger.balances["miner-a"].Equal(decimal.NewFromInt(50)))

	require.Len(t, ledger.payouts, 1)
	assert.Equal(t, "miner-b", ledger.payouts[0].MinerID)
}

func TestRunHonorsBatchSize(t *testing.T) {
	chain := &mockChain{}
	miners := &mockMiners{}
	ledger := &mockLedger{balances: map[string]decimal.Decimal{}}
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("miner-%02d", i)
		miners.miners = append(miners.miners, miner(id, 50))
		ledger.balances[id] = decimal.NewFromInt(50)
	}

	s := NewScheduler(testNetwork, decimal.NewFromInt(1), 12*time.Hour, 10, 6000,
		chain, miners, ledger, nil, testLogger())
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, sent)
	assert.Len(t, chain.sends, 10)
}

func TestRunStopsWhenWalletCannotCover(t *testing.T) {
	// Wallet holds 40: enough for the 30 payout, not for the 50 one.
	// Candidates arrive ordered by balance descending.
	chain := &mockChain{wallet: decimal.NewFromInt(40)}
	miners := &mockMiners{miners: []*postgres.Miner{miner("miner-a", 50), miner("miner-b", 30)}}
	ledger := &mockLedger{balances: map[string]decimal.Decimal{
		"miner-a": decimal.NewFromInt(50),
		"miner-b": decimal.NewFromInt(30),
	}}

	s := testScheduler(chain, miners, ledger)
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, ledger.payouts, 1)
	assert.Equal(t, "miner-b", ledger.payouts[0].MinerID)
	// The uncovered miner keeps its balance untouched
	assert.True(t, ledger.balances["miner-a"].Equal(decimal.NewFromInt(50)))
}

func TestRunNothingToPay(t *testing.T) {
	s := testScheduler(&mockChain{}, &mockMiners{}, &mockLedger{balances: map[string]decimal.Decimal{}})
	sent, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}
