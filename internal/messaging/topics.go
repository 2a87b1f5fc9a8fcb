package messaging

// Topic constants for the pool messaging system
const (
	// TopicSolutions carries raw miner submissions, poold → solutionproc
	TopicSolutions = "pool.solutions"
)
