package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/shiftsuite/shiftboard/pkg/archive"
	"github.com/shiftsuite/shiftboard/pkg/session"
	"github.com/shiftsuite/shiftboard/pkg/upload"
)

// Config holds configuration for the HTTP server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// DataDir is the root directory for staged uploads and extracted
	// archives. Default: <os.TempDir()>/shiftboard.
	DataDir string

	// MaxUploadBytes caps the request body on upload routes.
	// Default: 100MB.
	MaxUploadBytes int64

	// TrustedProxies lists proxy IPs or CIDRs whose forwarded headers are
	// honored when resolving the client IP. Empty means no proxy is trusted.
	TrustedProxies []string

	// Timeouts

	// ReadHeaderTimeout is the maximum time to read request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ReadTimeout is the maximum time to read the full request, including
	// the upload body. Default: 5 minutes.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to write a response.
	// Default: 2 minutes.
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 2 minutes.
	IdleTimeout time.Duration

	// ShutdownTimeout is how long Shutdown waits for in-flight requests.
	// Default: 15 seconds.
	ShutdownTimeout time.Duration

	// Archive bounds ZIP extraction.
	Archive archive.Limits

	// Session configures the session manager built by New when no manager
	// is injected.
	Session session.ManagerConfig

	// Upload configures staged upload retention.
	Upload *upload.Config

	// Memory configures the heap monitor. Nil disables monitoring.
	Memory *MemoryMonitorConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		DataDir:           filepath.Join(os.TempDir(), "shiftboard"),
		MaxUploadBytes:    100 << 20,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		ShutdownTimeout:   15 * time.Second,
		Archive:           archive.DefaultLimits(),
		Session:           session.DefaultManagerConfig(),
		Upload:            upload.DefaultConfig(),
	}
}

// withDefaults fills in unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.Archive == (archive.Limits{}) {
		c.Archive = defaults.Archive
	}
	if c.Upload == nil {
		c.Upload = defaults.Upload
	}
	return c
}
