package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiskStore stages uploads on the local filesystem.
type DiskStore struct {
	dir     string
	maxSize int64

	mu    sync.RWMutex
	files map[string]*diskMeta
}

type diskMeta struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDiskStore creates a DiskStore rooted at dir.
// maxSize bounds a single staged file; 0 means no limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		files:   make(map[string]*diskMeta),
	}, nil
}

// Save stages the uploaded file and returns its upload ID.
func (s *DiskStore) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	uploadID := generateUploadID()
	path := filepath.Join(s.dir, uploadID)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var reader io.Reader = r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1) // +1 to detect overflow
	}

	written, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(path)
		return "", err
	}
	if s.maxSize > 0 && written > s.maxSize {
		os.Remove(path)
		return "", ErrTooLarge
	}
	if written == 0 {
		os.Remove(path)
		return "", ErrEmpty
	}

	meta := &diskMeta{
		Filename:    filename,
		ContentType: contentType,
		Size:        written,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.files[uploadID] = meta
	s.mu.Unlock()

	// Metadata also goes to disk so a restarted server can still claim.
	s.saveMeta(uploadID, meta)

	return uploadID, nil
}

// Claim retrieves and consumes a staged file.
func (s *DiskStore) Claim(ctx context.Context, uploadID string) (*File, error) {
	s.mu.Lock()
	meta, ok := s.files[uploadID]
	if ok {
		delete(s.files, uploadID)
	}
	s.mu.Unlock()

	if !ok {
		var err error
		meta, err = s.loadMeta(uploadID)
		if err != nil {
			return nil, ErrNotFound
		}
	}

	// Renaming takes ownership atomically: of two concurrent claims for the
	// same ID, exactly one wins and the other sees ErrNotFound.
	path := filepath.Join(s.dir, uploadID)
	claimed := path + ".claimed"
	if err := os.Rename(path, claimed); err != nil {
		return nil, ErrNotFound
	}
	os.Remove(s.metaPath(uploadID))

	f, err := os.Open(claimed)
	if err != nil {
		os.Remove(claimed)
		return nil, err
	}

	// The staged copy is deleted once the reader is closed.
	return &File{
		ID:          uploadID,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Path:        claimed,
		Reader:      &deleteOnCloseReader{File: f, path: claimed},
	}, nil
}

// Cleanup removes staged files older than maxAge.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	for uploadID, meta := range s.files {
		if meta.CreatedAt.Before(cutoff) {
			delete(s.files, uploadID)
			os.Remove(filepath.Join(s.dir, uploadID))
			os.Remove(s.metaPath(uploadID))
		}
	}
	s.mu.Unlock()

	// Also sweep orphaned files left by a previous process.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}

	return nil
}

func (s *DiskStore) metaPath(uploadID string) string {
	return filepath.Join(s.dir, uploadID+".meta")
}

func (s *DiskStore) saveMeta(uploadID string, meta *diskMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(uploadID), data, 0o644)
}

func (s *DiskStore) loadMeta(uploadID string) (*diskMeta, error) {
	data, err := os.ReadFile(s.metaPath(uploadID))
	if err != nil {
		return nil, err
	}
	var meta diskMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// generateUploadID generates a cryptographically random upload ID.
func generateUploadID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// SaveBytes stages an in-memory payload, e.g. a decoded data URL.
func (s *DiskStore) SaveBytes(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	return s.Save(ctx, filename, contentType, int64(len(data)), bytes.NewReader(data))
}

// deleteOnCloseReader wraps a file and deletes it when closed.
type deleteOnCloseReader struct {
	*os.File
	path string
}

func (r *deleteOnCloseReader) Close() error {
	err := r.File.Close()
	os.Remove(r.path)
	return err
}
