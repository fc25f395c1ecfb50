package docgraph

import (
	"fmt"
	"time"
)

// LayoutParseError reports malformed external layout output. It is fatal for
// the whole document; nothing is persisted.
type LayoutParseError struct {
	BlockIndex int
	Reason     string
}

func (e *LayoutParseError) Error() string {
	if e.BlockIndex >= 0 {
		return fmt.Sprintf("layout parse error at block %d: %s", e.BlockIndex, e.Reason)
	}
	return fmt.Sprintf("layout parse error: %s", e.Reason)
}

// ChunkingError reports a chunking invariant violation, such as a
// non-contiguous span. It indicates a bug and must never be silently
// corrected.
type ChunkingError struct {
	ChunkID string
	Reason  string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking error for %q: %s", e.ChunkID, e.Reason)
}

// EmbeddingError reports an upstream embedding failure after the configured
// retries are exhausted. It is fatal for the document.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreWriteError reports a vector or graph store write failure after
// retries. Compensated records whether a compensating deletion was applied
// to the store that had already succeeded.
type StoreWriteError struct {
	Store       string
	Compensated bool
	Err         error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s store write failed: %v", e.Store, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// RetrievalTimeout reports that a query exceeded its time budget. Partial
// results are never returned alongside it.
type RetrievalTimeout struct {
	Budget time.Duration
}

func (e *RetrievalTimeout) Error() string {
	return fmt.Sprintf("retrieval exceeded %s budget", e.Budget)
}
