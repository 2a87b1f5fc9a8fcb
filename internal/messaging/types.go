package messaging

import "time"

// SolutionMessage carries one raw miner submission from the intake
// frontend to the solution processor. The solution payload is the
// untouched comma-separated wire string; all parsing and validation
// happens on the consumer side.
type SolutionMessage struct {
	Network    string    `json:"network"`
	MinerField string    `json:"miner_field"`
	Solution   string    `json:"solution"`
	RemoteAddr string    `json:"remote_addr"`
	OS         string    `json:"os"`
	Agent      string    `json:"agent"`
	ReceivedAt time.Time `json:"received_at"`
}

// BlockNotification signals a new chain tip seen over ZMQ. The block
// processor reacts by walking the chain for undiscovered heights.
type BlockNotification struct {
	Network   string    `json:"network"`
	BlockHash string    `json:"block_hash"`
	SeenAt    time.Time `json:"seen_at"`
}
