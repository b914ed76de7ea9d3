package pipeline

import (
	"context"
	"sync"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// MemoryStore is an in-process Store. It backs tests and single-node
// deployments that run without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) FindOutcome(ctx context.Context, eventID string) (*Outcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[eventID]
	if !ok {
		return nil, false, nil
	}
	return outcomeFromRecord(rec), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Event.ID] = rec
	return nil
}

// Len returns the number of persisted events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the persisted record for an event identifier.
func (s *MemoryStore) Get(eventID string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[eventID]
	return rec, ok
}

// outcomeFromRecord rebuilds the outcome a persisted record represents.
func outcomeFromRecord(rec *Record) *Outcome {
	outcome := &Outcome{
		EventID:        rec.Event.ID,
		Status:         StatusOK,
		Classification: rec.Classification,
		Alerts:         rec.Alerts,
	}
	for _, alert := range rec.Alerts {
		outcome.Severity = types.MaxSeverity(outcome.Severity, alert.Severity)
		if alert.Blocked() {
			outcome.Blocked = true
		}
	}
	return outcome
}
