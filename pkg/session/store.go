package session

import (
	"context"
	"time"
)

// Store defines the interface for session manifest persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a session manifest. If sessionID already exists, it is
	// overwritten. The expiresAt parameter indicates when the record should
	// expire.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load retrieves a manifest by session ID.
	// Returns (nil, nil) if the session doesn't exist or has expired.
	// Returns (data, nil) if found and not expired.
	// Returns (nil, err) on backend errors.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a session record. Should not return an error if the
	// session doesn't exist.
	Delete(ctx context.Context, sessionID string) error

	// Touch updates the expiration time without rewriting the manifest.
	// Should not return an error if the session doesn't exist.
	Touch(ctx context.Context, sessionID string, expiresAt time.Time) error

	// SaveAll persists multiple sessions atomically (if possible).
	// Used during graceful shutdown.
	SaveAll(ctx context.Context, sessions map[string]StoredManifest) error

	// Close releases any resources held by the store.
	Close() error
}

// StoredManifest pairs an encoded manifest with its expiry.
type StoredManifest struct {
	// Data is the encoded manifest.
	Data []byte

	// ExpiresAt is when the record should expire.
	ExpiresAt time.Time
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "session store is closed"
}
