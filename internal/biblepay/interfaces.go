package biblepay

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChainClient defines the contract to the BiblePay daemon used by the
// settlement pipeline. It exists so validators and block processing can
// be tested against a mock daemon.
type ChainClient interface {
	// Subsidy queries the reward and recipient for one block height.
	// Returns ErrBlockNotFound past the chain tip.
	Subsidy(ctx context.Context, height int64) (*SubsidyInfo, error)

	// BibleHash recomputes the proof hash for the given block parameters.
	BibleHash(ctx context.Context, blockHash, blockTime, prevBlockTime, prevHeight, nonce string) (string, error)

	// HexBlockToCoinbase decodes a raw block/transaction pair into its
	// coinbase payout information.
	HexBlockToCoinbase(ctx context.Context, blockHex, txHex string) (*CoinbaseInfo, error)

	// PoolInfo returns the current nonce acceptance ceiling and height.
	PoolInfo(ctx context.Context) (*MiningInfo, error)

	// WalletBalance returns the pool wallet's balance.
	WalletBalance(ctx context.Context) (*WalletInfo, error)

	// SendToAddress pays out to a miner address and returns the chain tx id.
	SendToAddress(ctx context.Context, address string, amount decimal.Decimal, comment string) (string, error)

	// Ping tests daemon connectivity.
	Ping(ctx context.Context) error

	// Close shuts down the client.
	Close()
}

// ZMQInterface defines the contract for daemon ZMQ notifications.
type ZMQInterface interface {
	Subscribe(topic string) error
	Connect() error
	Listen(ctx context.Context, handler func(topic string, data []byte) error) error
	Close() error
}

// Compile-time interface compliance checks
var (
	_ ChainClient  = (*RPCClient)(nil)
	_ ZMQInterface = (*ZMQNotifier)(nil)
)
