package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// SelectionRecord captures the evaluator output for one underlying in one
// session.
type SelectionRecord struct {
	Session    string    `json:"session"` // trading date, 2006-01-02
	Underlying string    `json:"underlying"`
	Reference  float64   `json:"reference_price"`
	Selected   []string  `json:"selected"` // contract symbols, rank order
	Timestamp  time.Time `json:"timestamp"`
}

// OrderRecord captures one order submission made by the order glue.
type OrderRecord struct {
	Session    string    `json:"session"`
	Underlying string    `json:"underlying"`
	Symbol     string    `json:"symbol"`
	OrderID    string    `json:"order_id"`
	Quantity   int       `json:"quantity"`
	PlacedAt   time.Time `json:"placed_at"`
}

// Statistics aggregates run counters.
type Statistics struct {
	SessionsEvaluated int `json:"sessions_evaluated"`
	SelectionsStored  int `json:"selections_stored"`
	EmptySelections   int `json:"empty_selections"`
	OrdersPlaced      int `json:"orders_placed"`
}

type runData struct {
	Selections  []SelectionRecord `json:"selections"`
	Orders      []OrderRecord     `json:"orders"`
	Statistics  *Statistics       `json:"statistics"`
	LastUpdated time.Time         `json:"last_updated"`
}

// JSONStorage persists run data to a single JSON file with atomic writes.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *runData
}

// NewJSONStorage creates a JSON storage, loading existing data if the file
// exists.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &runData{
			Selections: make([]SelectionRecord, 0),
			Orders:     make([]OrderRecord, 0),
			Statistics: &Statistics{},
		},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the backing file into memory.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return err
	}
	if s.data.Statistics == nil {
		s.data.Statistics = &Statistics{}
	}

	return nil
}

// Save writes the in-memory data to disk atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first, then atomic rename
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// RecordSelection appends a selection record and updates counters.
func (s *JSONStorage) RecordSelection(rec SelectionRecord) error {
	if rec.Underlying == "" {
		return fmt.Errorf("selection record underlying is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Selections = append(s.data.Selections, rec)
	s.data.Statistics.SelectionsStored++
	if len(rec.Selected) == 0 {
		s.data.Statistics.EmptySelections++
	}
	return s.saveLocked()
}

// RecordOrder appends an order record and updates counters.
func (s *JSONStorage) RecordOrder(rec OrderRecord) error {
	if rec.Symbol == "" {
		return fmt.Errorf("order record symbol is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Orders = append(s.data.Orders, rec)
	s.data.Statistics.OrdersPlaced++
	return s.saveLocked()
}

// Selections returns a copy of all stored selection records.
func (s *JSONStorage) Selections() []SelectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SelectionRecord, len(s.data.Selections))
	copy(out, s.data.Selections)
	return out
}

// Orders returns a copy of all stored order records.
func (s *JSONStorage) Orders() []OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OrderRecord, len(s.data.Orders))
	copy(out, s.data.Orders)
	return out
}

// LatestSelection returns the most recent selection record for an underlying.
func (s *JSONStorage) LatestSelection(underlying string) (SelectionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.data.Selections) - 1; i >= 0; i-- {
		if s.data.Selections[i].Underlying == underlying {
			return s.data.Selections[i], true
		}
	}
	return SelectionRecord{}, false
}

// GetStatistics returns a copy of the aggregate counters.
func (s *JSONStorage) GetStatistics() *Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := *s.data.Statistics
	return &stats
}

// BumpSessionsEvaluated increments the session counter. The engine calls this
// once per session-open evaluation pass.
func (s *JSONStorage) BumpSessionsEvaluated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Statistics.SessionsEvaluated++
}
