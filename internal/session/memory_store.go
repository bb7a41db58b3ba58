package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when Redis is not configured.
// Expired records are dropped lazily on lookup.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryRecord
}

type memoryRecord struct {
	participant Participant
	expiresAt   time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryRecord)}
}

func (s *MemoryStore) SaveSession(_ context.Context, tokenHash string, participant Participant, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenHash] = memoryRecord{participant: participant, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupSession(_ context.Context, tokenHash string) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[tokenHash]
	if !ok {
		return Participant{}, ErrSessionNotFound
	}
	if time.Now().After(record.expiresAt) {
		delete(s.sessions, tokenHash)
		return Participant{}, ErrSessionNotFound
	}
	return record.participant, nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
