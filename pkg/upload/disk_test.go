package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDiskStoreSaveAndClaim verifies staging, claiming, and consumption.
func TestDiskStoreSaveAndClaim(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id, err := store.Save(ctx, "upload.zip", "application/zip", 7, strings.NewReader("PK-data"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id == "" {
		t.Fatal("Save() returned empty ID")
	}

	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if file.Filename != "upload.zip" {
		t.Errorf("Filename = %q", file.Filename)
	}
	if file.Size != 7 {
		t.Errorf("Size = %d, want 7", file.Size)
	}

	data, err := io.ReadAll(file.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PK-data" {
		t.Errorf("contents = %q", data)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	// Closing the claimed file deletes the staged copy.
	if _, err := os.Stat(file.Path); !os.IsNotExist(err) {
		t.Errorf("staged file still on disk: %v", err)
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Claim() error = %v, want ErrNotFound", err)
	}
}

// TestDiskStoreSizeLimit verifies declared and actual size checks.
func TestDiskStoreSizeLimit(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Declared too large.
	if _, err := store.Save(ctx, "big.zip", "application/zip", 1<<20, strings.NewReader("x")); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Save(declared big) error = %v, want ErrTooLarge", err)
	}

	// Lies about its size; actual bytes exceed the limit.
	body := strings.Repeat("x", 64)
	if _, err := store.Save(ctx, "liar.zip", "application/zip", 4, strings.NewReader(body)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Save(lying size) error = %v, want ErrTooLarge", err)
	}
}

// TestDiskStoreEmpty verifies zero-byte uploads are rejected.
func TestDiskStoreEmpty(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(context.Background(), "empty.zip", "application/zip", 0, strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Errorf("Save(empty) error = %v, want ErrEmpty", err)
	}
}

// TestDiskStoreSaveBytes verifies the in-memory path used for data URLs.
func TestDiskStoreSaveBytes(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id, err := store.SaveBytes(ctx, "upload.zip", "application/zip", []byte("payload"))
	if err != nil {
		t.Fatalf("SaveBytes() error = %v", err)
	}
	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	data, _ := io.ReadAll(file.Reader)
	if string(data) != "payload" {
		t.Errorf("contents = %q", data)
	}
}

// TestDiskStoreClaimSurvivesRestart verifies metadata persisted to disk lets
// a fresh store claim files staged by a previous process.
func TestDiskStoreClaimSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store1, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := store1.Save(ctx, "upload.zip", "application/zip", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatal(err)
	}

	store2, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	file, err := store2.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() after restart error = %v", err)
	}
	defer file.Close()
	if file.Filename != "upload.zip" {
		t.Errorf("Filename = %q", file.Filename)
	}
}

// TestDiskStoreCleanup verifies expired staged files are swept.
func TestDiskStoreCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id, err := store.Save(ctx, "old.zip", "application/zip", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatal(err)
	}

	// Backdate the staged file so the sweep sees it as old.
	old := time.Now().Add(-2 * time.Hour)
	os.Chtimes(filepath.Join(dir, id), old, old)
	os.Chtimes(filepath.Join(dir, id+".meta"), old, old)
	store.mu.Lock()
	store.files[id].CreatedAt = old
	store.mu.Unlock()

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Claim(expired) error = %v, want ErrNotFound", err)
	}
}

// TestDiskStoreClaimIsOneShot verifies that a claim consumes the upload
// immediately, before the first reader is closed.
func TestDiskStoreClaimIsOneShot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id, err := store.Save(ctx, "upload.zip", "application/zip", 7, strings.NewReader("PK-data"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	defer file.Close()

	// The second claim must lose even though the first reader is still open,
	// and even through the metadata-sidecar path a restarted server takes.
	if _, err := store.Claim(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("concurrent Claim() error = %v, want ErrNotFound", err)
	}
	restarted, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := restarted.Claim(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("restarted Claim() error = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(dir, id+".meta")); !os.IsNotExist(err) {
		t.Errorf("meta sidecar still on disk after claim: %v", err)
	}

	// The winner's reader is unaffected.
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PK-data" {
		t.Errorf("contents = %q", data)
	}
}
