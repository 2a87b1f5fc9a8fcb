package biblepay

import (
	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/pkg/errors"
)

// ErrBlockNotFound is returned by Subsidy when the requested height does
// not exist on the chain yet. Block discovery uses it to stop walking.
var ErrBlockNotFound = errors.New(errors.ErrorTypeChain, "subsidy", "block not found")

// SubsidyInfo is the daemon's answer to a subsidy query for one height.
type SubsidyInfo struct {
	// Block reward for the height
	Subsidy decimal.Decimal `json:"subsidy"`

	// Address the reward was paid to
	Recipient string `json:"recipient"`

	// Miner guid embedded by the pool's own miners, if any
	MinerGUID string `json:"minerguid"`

	// Client version strings, statistics only
	BlockVersion  string `json:"blockversion"`
	BlockVersion2 string `json:"blockversion2"`
}

// CoinbaseInfo is the decoded coinbase of a submitted block/transaction
// pair. The signature and legality flags are pointers because daemons
// older than the flag rollout omit them entirely, which callers must
// distinguish from an explicit false.
type CoinbaseInfo struct {
	TxID      string          `json:"txid"`
	Subsidy   decimal.Decimal `json:"subsidy"`
	Recipient string          `json:"recipient"`

	CPIDSigValid *bool `json:"cpid_sig_valid"`
	CPIDLegal    *bool `json:"cpid_legal"`
}

// MiningInfo carries the daemon's current acceptance window: the highest
// nonce it will accept and the current chain height.
type MiningInfo struct {
	MaxNonce int64 `json:"pinfo"`
	Height   int64 `json:"height"`
}

// WalletInfo is the subset of getwalletinfo the pool cares about.
type WalletInfo struct {
	Balance          decimal.Decimal `json:"balance"`
	ImmatureBalance  decimal.Decimal `json:"immature_balance"`
	UnconfirmedCount int64           `json:"txcount"`
}
