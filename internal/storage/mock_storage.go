package storage

import (
	"fmt"
	"sync"
)

// MockStorage implements Interface in memory for testing.
type MockStorage struct {
	mu            sync.RWMutex
	selections    []SelectionRecord
	orders        []OrderRecord
	statistics    *Statistics
	saveError     error
	saveCallCount int
	loadCallCount int
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{
		statistics: &Statistics{},
	}
}

// SetSaveError makes subsequent record calls fail with the given error.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// RecordSelection appends a selection record.
func (m *MockStorage) RecordSelection(rec SelectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	if rec.Underlying == "" {
		return fmt.Errorf("selection record underlying is required")
	}
	m.selections = append(m.selections, rec)
	m.statistics.SelectionsStored++
	if len(rec.Selected) == 0 {
		m.statistics.EmptySelections++
	}
	return nil
}

// RecordOrder appends an order record.
func (m *MockStorage) RecordOrder(rec OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.orders = append(m.orders, rec)
	m.statistics.OrdersPlaced++
	return nil
}

// BumpSessionsEvaluated increments the session counter.
func (m *MockStorage) BumpSessionsEvaluated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statistics.SessionsEvaluated++
}

// Selections returns all recorded selections.
func (m *MockStorage) Selections() []SelectionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SelectionRecord, len(m.selections))
	copy(out, m.selections)
	return out
}

// Orders returns all recorded orders.
func (m *MockStorage) Orders() []OrderRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderRecord, len(m.orders))
	copy(out, m.orders)
	return out
}

// LatestSelection returns the most recent selection for an underlying.
func (m *MockStorage) LatestSelection(underlying string) (SelectionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.selections) - 1; i >= 0; i-- {
		if m.selections[i].Underlying == underlying {
			return m.selections[i], true
		}
	}
	return SelectionRecord{}, false
}

// GetStatistics returns a copy of the counters.
func (m *MockStorage) GetStatistics() *Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := *m.statistics
	return &stats
}

// Save is a no-op for the mock.
func (m *MockStorage) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	return m.saveError
}

// Load is a no-op for the mock.
func (m *MockStorage) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCallCount++
	return nil
}
