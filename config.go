package docgraph

import "time"

// RetrievalConfig tunes the retrieval orchestrator.
type RetrievalConfig struct {
	// K is the number of fine-chunk similarity candidates fetched from the
	// vector store.
	K int
	// MaxHops bounds graph expansion from each candidate.
	MaxHops int
	// HopDecay is the multiplicative score reduction applied per traversal
	// hop. Must be below 1; the right value is workload-dependent.
	HopDecay float64
	// EdgeTypes are the edge types followed during expansion.
	EdgeTypes []EdgeType
	// Limit truncates the merged result list.
	Limit int
	// Timeout bounds a single query end-to-end.
	Timeout time.Duration
}

// DefaultRetrievalConfig returns the documented retrieval defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		K:         10,
		MaxHops:   1,
		HopDecay:  0.5,
		EdgeTypes: []EdgeType{EdgeParentChild, EdgeCrossRef},
		Limit:     20,
		Timeout:   10 * time.Second,
	}
}
