package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeZip builds a zip on disk from name->content pairs and returns its path.
func writeZip(t *testing.T, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	path := filepath.Join(t.TempDir(), "upload.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

// TestExtractFlatArchive verifies a flat archive extracts and reports the
// default scenario.
func TestExtractFlatArchive(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"heat_ALL.parquet":  "binary-ish",
		"shortage_time.csv": ",lack\n09:00,2\n",
		"sub/stats.parquet": "nested",
	})
	dest := t.TempDir()

	res, err := Extract(zipPath, dest, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Members != 3 {
		t.Errorf("Members = %d, want 3", res.Members)
	}
	if len(res.Scenarios) != 1 || res.Scenarios[0] != DefaultScenario {
		t.Errorf("Scenarios = %v, want [%s]", res.Scenarios, DefaultScenario)
	}
	if _, err := os.Stat(filepath.Join(dest, "sub", "stats.parquet")); err != nil {
		t.Errorf("nested member not extracted: %v", err)
	}
}

// TestExtractScenarioArchive verifies out_* directories become scenarios in
// canonical order.
func TestExtractScenarioArchive(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"out_p25_based/heat_ALL.csv":    "a",
		"out_mean_based/heat_ALL.csv":   "b",
		"out_median_based/heat_ALL.csv": "c",
		"out_custom/heat_ALL.csv":       "d",
	})
	dest := t.TempDir()

	res, err := Extract(zipPath, dest, DefaultLimits())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []string{"out_mean_based", "out_median_based", "out_p25_based", "out_custom"}
	if len(res.Scenarios) != len(want) {
		t.Fatalf("Scenarios = %v, want %v", res.Scenarios, want)
	}
	for i, name := range want {
		if res.Scenarios[i] != name {
			t.Errorf("Scenarios[%d] = %q, want %q", i, res.Scenarios[i], name)
		}
	}
}

// TestExtractRejectsTraversal verifies ../ members abort extraction.
func TestExtractRejectsTraversal(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"../escape.txt": "nope",
	})
	_, err := Extract(zipPath, t.TempDir(), DefaultLimits())
	if !errors.Is(err, ErrTraversal) {
		t.Fatalf("Extract() error = %v, want ErrTraversal", err)
	}
}

// TestExtractRequiresHeatTable verifies archives without a heat_ALL table
// are rejected, matching any extension case-insensitively when present.
func TestExtractRequiresHeatTable(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"shortage_time.csv": ",lack\n09:00,2\n",
		"notes.txt":         "no artifacts here",
	})
	_, err := Extract(zipPath, t.TempDir(), DefaultLimits())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Extract() error = %v, want ErrNoData", err)
	}

	zipPath = writeZip(t, map[string]string{
		"out_mean_based/HEAT_all.XLSX": "spreadsheet",
	})
	if _, err := Extract(zipPath, t.TempDir(), DefaultLimits()); err != nil {
		t.Fatalf("Extract() error = %v, want case-insensitive heat match", err)
	}
}

// TestExtractRejectsAbsolutePath verifies absolute member paths are refused.
func TestExtractRejectsAbsolutePath(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"/etc/evil.txt": "nope",
	})
	_, err := Extract(zipPath, t.TempDir(), DefaultLimits())
	if !errors.Is(err, ErrTraversal) {
		t.Fatalf("Extract() error = %v, want ErrTraversal", err)
	}
}

// TestExtractMemberLimit verifies the member-count bound.
func TestExtractMemberLimit(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"a.csv": "1", "b.csv": "2", "c.csv": "3",
	})
	limits := DefaultLimits()
	limits.MaxMembers = 2

	_, err := Extract(zipPath, t.TempDir(), limits)
	if !errors.Is(err, ErrTooManyMembers) {
		t.Fatalf("Extract() error = %v, want ErrTooManyMembers", err)
	}
}

// TestExtractSizeLimits verifies per-member and total byte bounds.
func TestExtractSizeLimits(t *testing.T) {
	big := strings.Repeat("x", 4096)
	zipPath := writeZip(t, map[string]string{"big.csv": big})

	limits := DefaultLimits()
	limits.MaxMemberBytes = 1024
	if _, err := Extract(zipPath, t.TempDir(), limits); !errors.Is(err, ErrTooLarge) {
		t.Errorf("member limit: error = %v, want ErrTooLarge", err)
	}

	limits = DefaultLimits()
	limits.MaxTotalBytes = 1024
	if _, err := Extract(zipPath, t.TempDir(), limits); !errors.Is(err, ErrTooLarge) {
		t.Errorf("total limit: error = %v, want ErrTooLarge", err)
	}
}

// TestExtractRatioLimit verifies highly compressible members trip the ratio
// check.
func TestExtractRatioLimit(t *testing.T) {
	// A long run of a single byte deflates to almost nothing.
	zipPath := writeZip(t, map[string]string{
		"bomb.csv": strings.Repeat("A", 1<<20),
	})
	limits := DefaultLimits()
	limits.MaxCompressionRatio = 50

	_, err := Extract(zipPath, t.TempDir(), limits)
	if !errors.Is(err, ErrRatio) {
		t.Fatalf("Extract() error = %v, want ErrRatio", err)
	}
}

// TestExtractNotZip verifies garbage input maps to ErrNotZip.
func TestExtractNotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notzip.zip")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Extract(path, t.TempDir(), DefaultLimits())
	if !errors.Is(err, ErrNotZip) {
		t.Fatalf("Extract() error = %v, want ErrNotZip", err)
	}
}

// TestValidate verifies header-only validation catches the same faults as
// extraction without touching the filesystem.
func TestValidate(t *testing.T) {
	good := writeZip(t, map[string]string{"heat_ALL.csv": "ok"})
	if err := Validate(good, DefaultLimits()); err != nil {
		t.Errorf("Validate(good) error = %v", err)
	}

	traversal := writeZip(t, map[string]string{"../x": "no"})
	if err := Validate(traversal, DefaultLimits()); !errors.Is(err, ErrTraversal) {
		t.Errorf("Validate(traversal) error = %v, want ErrTraversal", err)
	}

	limits := DefaultLimits()
	limits.MaxMembers = 1
	many := writeZip(t, map[string]string{"a": "1", "b": "2"})
	if err := Validate(many, limits); !errors.Is(err, ErrTooManyMembers) {
		t.Errorf("Validate(many) error = %v, want ErrTooManyMembers", err)
	}
}

// TestFindMember verifies case-insensitive basename lookup.
func TestFindMember(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"out_mean_based/Heat_ALL.xlsx", "readme.txt"} {
		if _, err := w.Create(name); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	if f := FindMember(zr, "heat_all.xlsx"); f == nil {
		t.Error("FindMember(heat_all.xlsx) = nil, want match")
	}
	if f := FindMember(zr, "missing.csv"); f != nil {
		t.Errorf("FindMember(missing.csv) = %q, want nil", f.Name)
	}
}

// TestDiscoverScenariosIgnoresFiles verifies stray top-level files do not
// produce scenarios.
func TestDiscoverScenariosIgnoresFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "out_notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "out_mean_based"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := DiscoverScenarios(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "out_mean_based" {
		t.Errorf("DiscoverScenarios() = %v, want [out_mean_based]", got)
	}
}

// TestScenarioNames verifies member-path discovery matches directory
// discovery: canonical ordering, dedupe, and the default fallback.
func TestScenarioNames(t *testing.T) {
	got := ScenarioNames([]string{
		"out_p25_based/heat_ALL.csv",
		"out_mean_based/heat_ALL.csv",
		"out_mean_based/shortage_time.csv",
		"readme.txt",
	})
	want := []string{"out_mean_based", "out_p25_based"}
	if len(got) != len(want) {
		t.Fatalf("ScenarioNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ScenarioNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	flat := ScenarioNames([]string{"heat_ALL.csv", "shortage_time.csv"})
	if len(flat) != 1 || flat[0] != DefaultScenario {
		t.Errorf("ScenarioNames(flat) = %v, want [default]", flat)
	}
}

// TestScenarioDir verifies default and named scenario resolution.
func TestScenarioDir(t *testing.T) {
	if got := ScenarioDir("/data/s1", DefaultScenario); got != "/data/s1" {
		t.Errorf("ScenarioDir(default) = %q", got)
	}
	want := filepath.Join("/data/s1", "out_mean_based")
	if got := ScenarioDir("/data/s1", "out_mean_based"); got != want {
		t.Errorf("ScenarioDir(out_mean_based) = %q, want %q", got, want)
	}
}

// TestDisplayName verifies the scenario label mapping.
func TestDisplayName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"out_mean_based", "Mean based"},
		{"out_median_based", "Median based"},
		{"out_p25_based", "P25 based"},
		{"default", "Default"},
		{"out_custom", "out_custom"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
