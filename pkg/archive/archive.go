// Package archive validates and extracts uploaded ZIP archives of analysis
// artifacts. Archives are untrusted input: extraction enforces member-count,
// size, and compression-ratio limits, and rejects members that would escape
// the destination directory.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Error types for archive handling.
var (
	// ErrNotZip is returned when the file is not a readable ZIP archive.
	ErrNotZip = errors.New("archive: not a zip file")

	// ErrTraversal is returned when a member path escapes the destination.
	ErrTraversal = errors.New("archive: member path escapes destination")

	// ErrTooManyMembers is returned when the member count limit is exceeded.
	ErrTooManyMembers = errors.New("archive: too many members")

	// ErrTooLarge is returned when an uncompressed size limit is exceeded.
	ErrTooLarge = errors.New("archive: uncompressed size exceeds limit")

	// ErrRatio is returned when a member's compression ratio exceeds the limit.
	ErrRatio = errors.New("archive: compression ratio exceeds limit")

	// ErrNoData is returned when the archive holds no heat_ALL table, the
	// one artifact every result bundle must carry.
	ErrNoData = errors.New("archive: no heat_ALL table found")
)

// Limits bounds what an uploaded archive may contain.
type Limits struct {
	// MaxMembers is the maximum number of files in the archive.
	// Default: 2000.
	MaxMembers int

	// MaxMemberBytes is the maximum uncompressed size of a single member.
	// Default: 256MB.
	MaxMemberBytes int64

	// MaxTotalBytes is the maximum uncompressed size of the whole archive.
	// Default: 1GB.
	MaxTotalBytes int64

	// MaxCompressionRatio is the maximum uncompressed/compressed ratio for
	// a single member. Members above it are treated as a ZIP bomb.
	// Default: 200.
	MaxCompressionRatio float64
}

// DefaultLimits returns Limits with sensible defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxMembers:          2000,
		MaxMemberBytes:      256 << 20,
		MaxTotalBytes:       1 << 30,
		MaxCompressionRatio: 200,
	}
}

// Result summarizes a successful extraction.
type Result struct {
	// Members is the number of files extracted.
	Members int

	// Bytes is the total uncompressed size written.
	Bytes int64

	// Scenarios are the scenario names discovered in the extracted tree.
	Scenarios []string
}

// Extract unpacks the archive at zipPath into dest, enforcing limits.
// dest must exist. On any error the partially extracted tree is left for the
// caller to remove along with the session directory.
func Extract(zipPath, dest string, limits Limits) (*Result, error) {
	rc, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	defer rc.Close()

	// klauspost's flate is a drop-in, faster inflate.
	rc.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	res := &Result{}
	var total int64
	hasHeat := false

	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Symlinks could point outside the tree; artifacts never need them.
		if f.Mode()&os.ModeSymlink != 0 {
			continue
		}

		res.Members++
		if isHeatTable(f.Name) {
			hasHeat = true
		}
		if limits.MaxMembers > 0 && res.Members > limits.MaxMembers {
			return nil, fmt.Errorf("%w: more than %d", ErrTooManyMembers, limits.MaxMembers)
		}
		if err := checkHeader(f, limits); err != nil {
			return nil, err
		}

		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return nil, err
		}

		n, err := extractMember(f, target, limits, total)
		if err != nil {
			return nil, err
		}
		total += n
		if limits.MaxTotalBytes > 0 && total > limits.MaxTotalBytes {
			return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrTooLarge, limits.MaxTotalBytes)
		}
	}

	res.Bytes = total
	if !hasHeat {
		return nil, ErrNoData
	}

	scenarios, err := DiscoverScenarios(dest)
	if err != nil {
		return nil, err
	}
	res.Scenarios = scenarios
	return res, nil
}

// Validate checks the archive's headers against limits without extracting.
func Validate(zipPath string, limits Limits) error {
	rc, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	defer rc.Close()

	members := 0
	var declared int64
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members++
		if limits.MaxMembers > 0 && members > limits.MaxMembers {
			return fmt.Errorf("%w: more than %d", ErrTooManyMembers, limits.MaxMembers)
		}
		if err := checkHeader(f, limits); err != nil {
			return err
		}
		if _, err := safeJoin("/validate", f.Name); err != nil {
			return err
		}
		declared += int64(f.UncompressedSize64)
		if limits.MaxTotalBytes > 0 && declared > limits.MaxTotalBytes {
			return fmt.Errorf("%w: archive declares %d bytes", ErrTooLarge, declared)
		}
	}
	return nil
}

// checkHeader enforces per-member declared-size and ratio limits.
// Declared sizes can lie, so extraction re-checks actual bytes.
func checkHeader(f *zip.File, limits Limits) error {
	size := int64(f.UncompressedSize64)
	if limits.MaxMemberBytes > 0 && size > limits.MaxMemberBytes {
		return fmt.Errorf("%w: member %q declares %d bytes", ErrTooLarge, f.Name, size)
	}
	if limits.MaxCompressionRatio > 0 && f.CompressedSize64 > 0 {
		ratio := float64(f.UncompressedSize64) / float64(f.CompressedSize64)
		if ratio > limits.MaxCompressionRatio {
			return fmt.Errorf("%w: member %q ratio %.0f", ErrRatio, f.Name, ratio)
		}
	}
	return nil
}

// safeJoin joins a member name onto dest, rejecting absolute paths and
// anything that would traverse out of dest.
func safeJoin(dest, name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(cleaned) || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("%w: %q", ErrTraversal, name)
	}
	return filepath.Join(dest, filepath.FromSlash(cleaned)), nil
}

// extractMember writes one member to target, enforcing actual-size limits.
func extractMember(f *zip.File, target string, limits Limits, totalSoFar int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	src, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open %q: %v", ErrNotZip, f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	// Budget is the tighter of the member and remaining-total limits;
	// +1 so an overflowing member is detected rather than silently cut.
	budget := limits.MaxMemberBytes
	if limits.MaxTotalBytes > 0 {
		remaining := limits.MaxTotalBytes - totalSoFar
		if budget <= 0 || remaining < budget {
			budget = remaining
		}
	}

	var reader io.Reader = src
	if budget > 0 {
		reader = io.LimitReader(src, budget+1)
	}

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(target)
		return 0, fmt.Errorf("%w: %q: %v", ErrNotZip, f.Name, err)
	}
	if budget > 0 && written > budget {
		os.Remove(target)
		return 0, fmt.Errorf("%w: member %q larger than declared", ErrTooLarge, f.Name)
	}
	return written, nil
}

// isHeatTable reports whether a member is a heat_ALL table under any
// extension, matched case-insensitively by base name.
func isHeatTable(name string) bool {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, `\`, "/")))
	return strings.TrimSuffix(base, path.Ext(base)) == "heat_all"
}

// FindMember locates a member by case-insensitive base name, the way the
// original dashboard resolved heat_ALL.xlsx no matter where the tooling put
// it inside the archive.
func FindMember(zr *zip.Reader, name string) *zip.File {
	target := strings.ToLower(name)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.ToLower(path.Base(f.Name)) == target {
			return f
		}
	}
	return nil
}
