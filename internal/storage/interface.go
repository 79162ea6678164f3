// Package storage persists backtest run results: per-session universe
// selections, submitted orders, and aggregate statistics.
package storage

// Interface defines the contract for run result persistence.
//
// Implementations must be safe for concurrent use - the engine writes from its
// event loop while the dashboard reads from HTTP handlers.
type Interface interface {
	// Run results
	RecordSelection(rec SelectionRecord) error
	RecordOrder(rec OrderRecord) error
	BumpSessionsEvaluated()

	// Queries
	Selections() []SelectionRecord
	Orders() []OrderRecord
	LatestSelection(underlying string) (SelectionRecord, bool)
	GetStatistics() *Statistics

	// Data persistence
	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based)
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
