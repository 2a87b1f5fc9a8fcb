package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// Block lifecycle states. A block only moves forward through these,
// except for the terminal stale branch out of StatusProcessingShares.
const (
	BlockStatusOpen             = "OP"
	BlockStatusBasicsProcessed  = "BP"
	BlockStatusProcessingShares = "PS"
	BlockStatusFinished         = "FI"
	BlockStatusStale            = "ST"
)

// Transaction ledger categories.
const (
	TxCategoryUndefined   = "UD"
	TxCategoryMiningShare = "MS"
	TxCategoryOutgoing    = "TX"
)

// Miner is one payout identity. The id is a uuid because it shows up in
// client-visible transactions and must not be guessable.
type Miner struct {
	ID      string `db:"id"`
	Network string `db:"network"`
	Address string `db:"address"`

	// Reputation fields. The rating buckets miners by efficiency, the
	// percent ratio compares a miner's solutions-per-block against the
	// pool average and drives the admission multiplier.
	Rating       int             `db:"rating"`
	Ratio        decimal.Decimal `db:"ratio"`
	PercentRatio decimal.Decimal `db:"percent_ratio"`

	// Cached balance derived from the transaction ledger. Never the
	// source of truth for payout decisions.
	Balance decimal.Decimal `db:"balance"`

	Enabled              bool       `db:"enabled"`
	LastAcceptedSolution *time.Time `db:"last_accepted_solution_at"`
	InsertedAt           time.Time  `db:"inserted_at"`
}

// Worker is one mining process under a miner, unique per (miner, name).
type Worker struct {
	ID         string    `db:"id"`
	MinerID    string    `db:"miner_id"`
	Name       string    `db:"name"`
	InsertedAt time.Time `db:"inserted_at"`
}

// Work is one admission grant handed to a worker thread. Solutions must
// reference the work they were granted.
type Work struct {
	ID         string    `db:"id"`
	WorkerID   string    `db:"worker_id"`
	ThreadID   string    `db:"thread_id"`
	Network    string    `db:"network"`
	HashTarget string    `db:"hash_target"`
	IP         string    `db:"ip"`
	OS         string    `db:"os"`
	Agent      string    `db:"agent"`
	InsertedAt time.Time `db:"inserted_at"`
}

// Solution is one accepted share. The bible hash is unique across all
// networks; that constraint is the pool's duplicate defense.
type Solution struct {
	ID        int64  `db:"id"`
	WorkID    string `db:"work_id"`
	MinerID   string `db:"miner_id"`
	Network   string `db:"network"`
	BibleHash string `db:"bible_hash"`

	// Raw wire payload, blanked by retention after the window expires
	Solution string `db:"solution"`

	HPS        int64     `db:"hps"`
	Processed  bool      `db:"processed"`
	BlockID    *int64    `db:"block_id"`
	Ignore     bool      `db:"ignore"`
	InsertedAt time.Time `db:"inserted_at"`
}

// RejectedSolution keeps failed submissions for later fraud analysis.
type RejectedSolution struct {
	ID         int64     `db:"id"`
	WorkID     string    `db:"work_id"`
	MinerID    string    `db:"miner_id"`
	Network    string    `db:"network"`
	BibleHash  string    `db:"bible_hash"`
	Solution   string    `db:"solution"`
	Reason     string    `db:"reason"`
	InsertedAt time.Time `db:"inserted_at"`
}

// Block is one observed chain height per network.
type Block struct {
	ID        int64           `db:"id"`
	Network   string          `db:"network"`
	Height    int64           `db:"height"`
	PoolBlock bool            `db:"pool_block"`
	MinerID   *string         `db:"miner_id"`
	Subsidy   decimal.Decimal `db:"subsidy"`
	Recipient string          `db:"recipient"`
	Status    string          `db:"process_status"`

	// Daemon version strings, statistics only
	BlockVersion  string `db:"block_version"`
	BlockVersion2 string `db:"block_version2"`

	InsertedAt time.Time `db:"inserted_at"`
}

// Transaction is one immutable ledger entry against a miner: positive for
// share credits, negative for payouts. A miner's true balance is the sum
// of its transactions.
type Transaction struct {
	ID           int64           `db:"id"`
	Network      string          `db:"network"`
	MinerID      string          `db:"miner_id"`
	Amount       decimal.Decimal `db:"amount"`
	Category     string          `db:"category"`
	Note         string          `db:"note"`
	InternalNote string          `db:"internal_note"`
	TxID         string          `db:"tx"`
	InsertedAt   time.Time       `db:"inserted_at"`
}

// TransactionError records a failed payout attempt without touching the
// ledger.
type TransactionError struct {
	ID           int64           `db:"id"`
	Network      string          `db:"network"`
	MinerID      string          `db:"miner_id"`
	Amount       decimal.Decimal `db:"amount"`
	ErrorMessage string          `db:"error_message"`
	InsertedAt   time.Time       `db:"inserted_at"`
}

// MinerShareCount is one miner's tallied share count for a block.
type MinerShareCount struct {
	MinerID string `db:"miner_id"`
	Count   int64  `db:"total"`
}
