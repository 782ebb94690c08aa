package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory manifest store. It's the default store and
// suitable for single-server deployments; use RedisStore or SQLStore when
// sessions must outlive the process or be shared across servers.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	closed  bool
	done    chan struct{}
}

type memoryRecord struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
}

// WithCleanupInterval sets how often expired records are cleaned up.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// NewMemoryStore creates a new in-memory manifest store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &MemoryStore{
		records: make(map[string]*memoryRecord),
		done:    make(chan struct{}),
	}

	go store.cleanupLoop(cfg.cleanupInterval)
	return store
}

// Save stores a manifest with an expiration time.
func (m *MemoryStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	m.records[sessionID] = &memoryRecord{
		data:      dataCopy,
		expiresAt: expiresAt,
	}
	return nil
}

// Load retrieves a manifest if it exists and hasn't expired.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed{}
	}

	rec, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	if time.Now().After(rec.expiresAt) {
		return nil, nil
	}

	dataCopy := make([]byte, len(rec.data))
	copy(dataCopy, rec.data)
	return dataCopy, nil
}

// Delete removes a session record.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	delete(m.records, sessionID)
	return nil
}

// Touch updates the expiration time for a record.
func (m *MemoryStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	if rec, ok := m.records[sessionID]; ok {
		rec.expiresAt = expiresAt
	}
	return nil
}

// SaveAll saves multiple manifests in one pass.
func (m *MemoryStore) SaveAll(ctx context.Context, sessions map[string]StoredManifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	for id, sm := range sessions {
		dataCopy := make([]byte, len(sm.Data))
		copy(dataCopy, sm.Data)

		m.records[id] = &memoryRecord{
			data:      dataCopy,
			expiresAt: sm.ExpiresAt,
		}
	}
	return nil
}

// Close shuts down the store and releases resources.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.done)
	m.records = nil
	return nil
}

// Count returns the number of records in the store.
// This is for monitoring/testing purposes.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// cleanupLoop periodically removes expired records.
func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	now := time.Now()
	for id, rec := range m.records {
		if now.After(rec.expiresAt) {
			delete(m.records, id)
		}
	}
}
