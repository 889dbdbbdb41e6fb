package state

import (
	"context"
	"sync"
)

// MemoryStore keeps records in memory. It never fails unless FailWith is set.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	opts    options

	// FailWith, when non-nil, is returned (wrapped in ErrStoreUnavailable) by every call.
	FailWith error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		opts:    newOptions(opts),
	}
}

// RecordStart implements Store.
func (s *MemoryStore) RecordStart(_ context.Context, phase string) error {
	if err := validatePhaseID(phase); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return unavailable("record start", s.FailWith)
	}
	s.records[phase] = nextStart(s.records[phase], phase, s.opts.runID, s.opts.now())
	return nil
}

// RecordResult implements Store.
func (s *MemoryStore) RecordResult(_ context.Context, phase string, result Result) error {
	if err := validatePhaseID(phase); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return unavailable("record result", s.FailWith)
	}
	s.records[phase] = withResult(s.records[phase], phase, s.opts.runID, result, s.opts.now())
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, unavailable("load", s.FailWith)
	}
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, phases ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return unavailable("reset", s.FailWith)
	}
	if len(phases) == 0 {
		s.records = make(map[string]Record)
		return nil
	}
	for _, p := range phases {
		delete(s.records, p)
	}
	return nil
}

// Put seeds a record directly.
func (s *MemoryStore) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Phase] = rec
}
