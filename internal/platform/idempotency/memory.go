package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process memory. Suitable for tests and single-instance runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	record, ok := s.records[id]
	if !ok || expired(record, now) {
		record = newPending(key, fingerprint, now, ttl)
		s.records[id] = record
		return StateNew, record, nil
	}
	if record.Fingerprint != fingerprint {
		return 0, Record{}, ErrFingerprintMismatch
	}
	if record.Completed {
		return StateCompleted, record, nil
	}
	return StatePending, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = newPending(key, fingerprint, now, ttl)
	}
	record.Completed = true
	record.Status = resp.Status
	record.Headers = storableHeaders(resp.Headers)
	record.Body = append([]byte(nil), resp.Body...)
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}
