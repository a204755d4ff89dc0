package tracestore

import (
	"context"
	"sync"
	"time"

	"github.com/sarchlab/miniprof/profiling"
)

// minSweepInterval bounds how often Put scans the map for expired records.
const minSweepInterval = time.Second

// MemoryStore keeps encoded records in a map. Records live for the TTL of
// the store, or forever when the TTL is zero. Get never returns an expired
// record. Put drops the expired records at most once per TTL, and at most
// once per second.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	clock     profiling.Clock
	lastSweep time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   profiling.WallClock(),
	}
}

// Put stores the record under the key.
func (s *MemoryStore) Put(ctx context.Context, key string, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	entry := memoryEntry{data: data}

	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	s.entries[key] = entry

	return nil
}

// Get returns the record stored under the key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.expired(s.clock.Now()) {
		return nil, ErrNotFound
	}

	return decodeRecord(entry.data)
}

// Len returns the number of records held, including expired ones that have
// not been swept yet.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *MemoryStore) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < max(s.ttl, minSweepInterval) {
		return
	}

	s.lastSweep = now

	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}

// Close drops every record.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]memoryEntry)

	return nil
}

var _ Store = (*MemoryStore)(nil)
