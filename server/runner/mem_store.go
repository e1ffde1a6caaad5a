package runner

import (
	"fmt"
	"sync"
)

// MemoryStore keeps run history in memory only (no persistence).
type MemoryStore struct {
	maxCount int
	runs     []RunStatus
	mu       sync.Mutex
}

// NewMemoryStore creates an in-memory store keeping up to maxCount runs. A
// non-positive maxCount keeps every run.
func NewMemoryStore(maxCount int) *MemoryStore {
	return &MemoryStore{
		maxCount: maxCount,
		runs:     make([]RunStatus, 0),
	}
}

func (s *MemoryStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

func (s *MemoryStore) Get(id string) (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return cloneRun(run), true
		}
	}
	return RunStatus{}, false
}

func (s *MemoryStore) Save(run RunStatus) error {
	if run.StartedAt == nil {
		return fmt.Errorf("cannot save run without start time")
	}
	if run.ID == "" {
		run.ID = run.CalculateID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend to keep most recent first
	s.runs = append([]RunStatus{cloneRun(run)}, s.runs...)
	if s.maxCount > 0 && len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
