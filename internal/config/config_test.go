package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiftsuite/shiftboard/pkg/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

// TestLoadMissingFileUsesDefaults verifies a missing file is not an error.
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Address != ":8080" {
		t.Errorf("Address = %q, want :8080", cfg.Address)
	}
	if cfg.Sessions.Max != 128 {
		t.Errorf("Sessions.Max = %d, want 128", cfg.Sessions.Max)
	}
	if cfg.Sessions.TTL.Std() != 2*time.Hour {
		t.Errorf("Sessions.TTL = %v, want 2h", cfg.Sessions.TTL.Std())
	}
	if cfg.Upload.MaxBytes != 100<<20 {
		t.Errorf("Upload.MaxBytes = %d, want 100MB", cfg.Upload.MaxBytes)
	}
}

// TestLoadFile verifies YAML values land, including duration strings.
func TestLoadFile(t *testing.T) {
	dir := writeConfig(t, `
address: ":9090"
log_level: debug
trusted_proxies: ["10.0.0.0/8"]
upload:
  max_bytes: 1048576
  staged_expiry: 30m
sessions:
  max: 5
  ttl: 45m
  eviction: oldest
cache:
  max_entries: 3
archive:
  max_members: 12
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Address != ":9090" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.Upload.StagedExpiry.Std() != 30*time.Minute {
		t.Errorf("StagedExpiry = %v, want 30m", cfg.Upload.StagedExpiry.Std())
	}
	if cfg.Sessions.TTL.Std() != 45*time.Minute {
		t.Errorf("TTL = %v, want 45m", cfg.Sessions.TTL.Std())
	}
	if cfg.Sessions.Eviction != "oldest" {
		t.Errorf("Eviction = %q", cfg.Sessions.Eviction)
	}
	if cfg.Archive.MaxMembers != 12 {
		t.Errorf("MaxMembers = %d", cfg.Archive.MaxMembers)
	}
	// Unset sections still get defaults.
	if cfg.Archive.MaxCompressionRatio != 200 {
		t.Errorf("MaxCompressionRatio = %v, want 200", cfg.Archive.MaxCompressionRatio)
	}
}

// TestArchiveLimitsBuilder verifies a fractional compression ratio survives
// the YAML round trip into extraction limits.
func TestArchiveLimitsBuilder(t *testing.T) {
	dir := writeConfig(t, `
archive:
  max_compression_ratio: 150.5
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	limits := cfg.ArchiveLimits()
	if limits.MaxCompressionRatio != 150.5 {
		t.Errorf("MaxCompressionRatio = %v, want 150.5", limits.MaxCompressionRatio)
	}
	if limits.MaxMembers != cfg.Archive.MaxMembers {
		t.Errorf("MaxMembers = %d, want %d", limits.MaxMembers, cfg.Archive.MaxMembers)
	}
}

// TestEnvOverrides verifies SHIFTBOARD_* variables beat the file.
func TestEnvOverrides(t *testing.T) {
	dir := writeConfig(t, "address: \":9090\"\nsessions:\n  max: 5\n")

	t.Setenv("SHIFTBOARD_ADDRESS", ":7070")
	t.Setenv("SHIFTBOARD_SESSIONS_MAX", "11")
	t.Setenv("SHIFTBOARD_SESSIONS_TTL", "90s")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Address != ":7070" {
		t.Errorf("Address = %q, want :7070", cfg.Address)
	}
	if cfg.Sessions.Max != 11 {
		t.Errorf("Sessions.Max = %d, want 11", cfg.Sessions.Max)
	}
	if cfg.Sessions.TTL.Std() != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", cfg.Sessions.TTL.Std())
	}
}

// TestValidateRejects covers the Validate failure cases.
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad log level", "log_level: loud\n"},
		{"bad eviction", "sessions:\n  eviction: fifo\n"},
		{"two stores", "store:\n  redis_addr: localhost:6379\n  sql_driver: sqlite\n  sql_dsn: x.db\n"},
		{"dsn without driver", "store:\n  sql_dsn: x.db\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.yaml)
			if _, err := Load(dir); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}

// TestLoadRejectsBadYAML verifies a syntax error is surfaced.
func TestLoadRejectsBadYAML(t *testing.T) {
	dir := writeConfig(t, "address: [unclosed\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}

// TestEvictionPolicyMapping verifies the name-to-policy mapping.
func TestEvictionPolicyMapping(t *testing.T) {
	tests := []struct {
		name string
		want session.EvictionPolicy
	}{
		{"lru", session.EvictionLRU},
		{"oldest", session.EvictionOldest},
		{"random", session.EvictionRandom},
	}
	for _, tt := range tests {
		cfg := New()
		cfg.Sessions.Eviction = tt.name
		if got := cfg.EvictionPolicy(); got != tt.want {
			t.Errorf("EvictionPolicy(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestServerConfigBuilder verifies the translation into server.Config.
func TestServerConfigBuilder(t *testing.T) {
	cfg := New()
	cfg.Address = ":9999"
	cfg.Upload.MaxBytes = 1 << 20
	cfg.Sessions.Max = 7
	cfg.Cache.MaxEntries = 4

	sc := cfg.ServerConfig()
	if sc.Address != ":9999" {
		t.Errorf("Address = %q", sc.Address)
	}
	if sc.MaxUploadBytes != 1<<20 {
		t.Errorf("MaxUploadBytes = %d", sc.MaxUploadBytes)
	}
	if sc.Session.MaxSessions != 7 {
		t.Errorf("Session.MaxSessions = %d", sc.Session.MaxSessions)
	}
	if sc.Session.Cache.MaxEntries != 4 {
		t.Errorf("Cache.MaxEntries = %d", sc.Session.Cache.MaxEntries)
	}
	if sc.Upload.MaxFileSize != 1<<20 {
		t.Errorf("Upload.MaxFileSize = %d", sc.Upload.MaxFileSize)
	}
}

// TestExists verifies config file detection.
func TestExists(t *testing.T) {
	if Exists(t.TempDir()) {
		t.Error("Exists() = true for empty dir")
	}
	dir := writeConfig(t, "address: \":1\"\n")
	if !Exists(dir) {
		t.Error("Exists() = false for dir with config")
	}
}
