package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	rec       Record
	expiresAt time.Time
}

// InMemoryIdempotencyStore para una sola instancia y tests. Las entradas vencidas
// se descartan al consultarlas.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryIdempotencyStore{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (s *InMemoryIdempotencyStore) Reserve(_ context.Context, key, fingerprint string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		rec := e.rec
		return &rec, false, nil
	}
	s.entries[key] = entry{rec: Record{Fingerprint: fingerprint, Pending: true}, expiresAt: now.Add(s.ttl)}
	return nil, true, nil
}

func (s *InMemoryIdempotencyStore) Complete(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Pending = false
	s.entries[key] = entry{rec: rec, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
