package memory

import (
	"context"
	"sync"

	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"
)

// InMemoryStore holds the whole chain as one ordered, append-only slice,
// with a subject index for lookups. The mutex also serializes Append calls,
// which is what keeps the hash chain from forking under concurrent writers.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  []*audit.Record
	bySubject map[id.SubjectID][]*audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySubject: make(map[id.SubjectID][]*audit.Record)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.bySubject = make(map[id.SubjectID][]*audit.Record)
}

func (s *InMemoryStore) Append(_ context.Context, d audit.Draft) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := audit.GenesisHash
	if n := len(s.records); n > 0 {
		prevHash = s.records[n-1].ContentHash
	}

	rec := audit.NextRecord(prevHash, d)
	s.records = append(s.records, rec)
	s.bySubject[d.SubjectID] = append(s.bySubject[d.SubjectID], rec)
	return rec, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*audit.Record{}, s.bySubject[subjectID]...), nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*audit.Record{}, s.records...), nil
}
