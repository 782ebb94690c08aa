package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when a staged file doesn't exist.
var ErrNotFound = errors.New("upload: file not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrEmpty is returned when an upload carries no bytes.
var ErrEmpty = errors.New("upload: empty file")

// ErrBadEncoding is returned when a data URL payload cannot be decoded.
var ErrBadEncoding = errors.New("upload: malformed base64 payload")

// Store is the interface for upload staging backends.
type Store interface {
	// Save stages the uploaded file and returns its upload ID.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (uploadID string, err error)

	// Claim retrieves a staged file and consumes it: after claiming, the
	// staged copy is deleted (or marked for deletion).
	Claim(ctx context.Context, uploadID string) (*File, error)

	// Cleanup removes staged files older than maxAge.
	// Call this periodically.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// File is a staged upload.
type File struct {
	// ID is the unique identifier for this upload.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the MIME type of the file.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// Path is the local filesystem path (for DiskStore).
	Path string

	// Reader provides access to the file contents.
	// May be nil if the file is stored on disk (use Path instead).
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// Config holds upload limits.
type Config struct {
	// MaxFileSize is the maximum allowed archive size in bytes.
	// Default: 100MB.
	MaxFileSize int64

	// StagedExpiry is how long staged files live before cleanup.
	// Default: 1 hour.
	StagedExpiry time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  100 << 20,
		StagedExpiry: time.Hour,
	}
}

// DecodeDataURL decodes a browser-style data URL payload
// ("data:application/zip;base64,UEsDBA...") or a bare base64 string into
// raw bytes.
func DecodeDataURL(value string) ([]byte, error) {
	payload := value
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, "base64,")
		if idx < 0 {
			return nil, ErrBadEncoding
		}
		payload = payload[idx+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrBadEncoding
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}
