package config

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/shiftsuite/shiftboard/internal/apperr"
	"github.com/shiftsuite/shiftboard/pkg/archive"
	"github.com/shiftsuite/shiftboard/pkg/dataset"
	"github.com/shiftsuite/shiftboard/pkg/server"
	"github.com/shiftsuite/shiftboard/pkg/session"
	"github.com/shiftsuite/shiftboard/pkg/upload"
)

const (
	// FileName is the default configuration file name.
	FileName = "shiftboard.yaml"

	// EnvPrefix is the prefix of environment override variables.
	EnvPrefix = "SHIFTBOARD_"
)

// Duration wraps time.Duration so YAML accepts "2h" / "90s" strings as well
// as raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full shiftboard.yaml schema.
type Config struct {
	// Address is the listen address. Default: ":8080".
	Address string `yaml:"address"`

	// DataDir is the root for staged uploads and extracted archives.
	// Default: <os.TempDir()>/shiftboard.
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn, error. Default: "info".
	LogLevel string `yaml:"log_level"`

	// TrustedProxies lists proxy IPs/CIDRs whose forwarded headers are
	// honored.
	TrustedProxies []string `yaml:"trusted_proxies"`

	Upload   UploadConfig   `yaml:"upload"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Sessions SessionsConfig `yaml:"sessions"`
	Cache    CacheConfig    `yaml:"cache"`
	Store    StoreConfig    `yaml:"store"`

	// configPath stores where the config was loaded from.
	configPath string
}

// UploadConfig bounds archive intake.
type UploadConfig struct {
	// MaxBytes caps a single upload. Default: 100MB.
	MaxBytes int64 `yaml:"max_bytes"`

	// StagedExpiry is how long an unclaimed staged upload survives.
	// Default: 1h.
	StagedExpiry Duration `yaml:"staged_expiry"`

	// S3Bucket switches staging to S3 when set. Empty keeps disk staging.
	S3Bucket string `yaml:"s3_bucket"`

	// S3Prefix is the object key prefix for staged uploads.
	S3Prefix string `yaml:"s3_prefix"`
}

// ArchiveConfig bounds ZIP extraction.
type ArchiveConfig struct {
	// MaxMembers caps the archive member count. Default: 2000.
	MaxMembers int `yaml:"max_members"`

	// MaxMemberBytes caps one member uncompressed. Default: 256MB.
	MaxMemberBytes int64 `yaml:"max_member_bytes"`

	// MaxTotalBytes caps the whole archive uncompressed. Default: 1GB.
	MaxTotalBytes int64 `yaml:"max_total_bytes"`

	// MaxCompressionRatio rejects members compressed beyond this factor.
	// Default: 200.
	MaxCompressionRatio float64 `yaml:"max_compression_ratio"`
}

// SessionsConfig bounds the session registry.
type SessionsConfig struct {
	// Max is the session capacity before eviction. Default: 128.
	Max int `yaml:"max"`

	// MaxPerIP caps sessions per client IP. 0 disables. Default: 8.
	MaxPerIP int `yaml:"max_per_ip"`

	// TTL is the idle session lifetime. Default: 2h.
	TTL Duration `yaml:"ttl"`

	// CleanupInterval is the expiry sweep period. Default: 1m.
	CleanupInterval Duration `yaml:"cleanup_interval"`

	// Eviction is lru, oldest, or random. Default: "lru".
	Eviction string `yaml:"eviction"`
}

// CacheConfig bounds each scenario's dataset cache.
type CacheConfig struct {
	// MaxEntries caps cached datasets per scenario. Default: 16.
	MaxEntries int `yaml:"max_entries"`

	// MaxBytes caps estimated cached bytes per scenario. Default: 256MB.
	MaxBytes int64 `yaml:"max_bytes"`
}

// StoreConfig selects the session manifest store. Exactly one backend may
// be set; none means manifests are not persisted.
type StoreConfig struct {
	// RedisAddr enables the Redis store (host:port).
	RedisAddr string `yaml:"redis_addr"`

	// RedisDB is the Redis database number.
	RedisDB int `yaml:"redis_db"`

	// SQLDriver and SQLDSN enable the SQL store ("sqlite", "postgres",
	// "mysql").
	SQLDriver string `yaml:"sql_driver"`
	SQLDSN    string `yaml:"sql_dsn"`
}

// New returns a Config with defaults applied.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads FileName from dir. A missing file yields defaults.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads configuration from path, then applies environment
// overrides. A missing file is not an error; overrides still apply.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return nil, apperr.New(apperr.CodeConfigInvalid).Wrap(err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.New(apperr.CodeConfigInvalid).
				WithDetail("%s is not valid YAML: %v", path, err)
		}
		cfg.configPath = path
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns where the config was loaded from, if anywhere.
func (c *Config) Path() string {
	return c.configPath
}

// applyEnv layers SHIFTBOARD_* variables over the file values.
func (c *Config) applyEnv() {
	setString(&c.Address, "ADDRESS")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setInt64(&c.Upload.MaxBytes, "UPLOAD_MAX_BYTES")
	setDuration(&c.Upload.StagedExpiry, "UPLOAD_STAGED_EXPIRY")
	setString(&c.Upload.S3Bucket, "UPLOAD_S3_BUCKET")
	setString(&c.Upload.S3Prefix, "UPLOAD_S3_PREFIX")
	setInt(&c.Sessions.Max, "SESSIONS_MAX")
	setInt(&c.Sessions.MaxPerIP, "SESSIONS_MAX_PER_IP")
	setDuration(&c.Sessions.TTL, "SESSIONS_TTL")
	setString(&c.Sessions.Eviction, "SESSIONS_EVICTION")
	setInt(&c.Cache.MaxEntries, "CACHE_MAX_ENTRIES")
	setInt64(&c.Cache.MaxBytes, "CACHE_MAX_BYTES")
	setString(&c.Store.RedisAddr, "STORE_REDIS_ADDR")
	setInt(&c.Store.RedisDB, "STORE_REDIS_DB")
	setString(&c.Store.SQLDriver, "STORE_SQL_DRIVER")
	setString(&c.Store.SQLDSN, "STORE_SQL_DSN")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(os.TempDir(), "shiftboard")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 100 << 20
	}
	if c.Upload.StagedExpiry <= 0 {
		c.Upload.StagedExpiry = Duration(time.Hour)
	}

	limits := archive.DefaultLimits()
	if c.Archive.MaxMembers <= 0 {
		c.Archive.MaxMembers = limits.MaxMembers
	}
	if c.Archive.MaxMemberBytes <= 0 {
		c.Archive.MaxMemberBytes = limits.MaxMemberBytes
	}
	if c.Archive.MaxTotalBytes <= 0 {
		c.Archive.MaxTotalBytes = limits.MaxTotalBytes
	}
	if c.Archive.MaxCompressionRatio <= 0 {
		c.Archive.MaxCompressionRatio = limits.MaxCompressionRatio
	}

	manager := session.DefaultManagerConfig()
	if c.Sessions.Max <= 0 {
		c.Sessions.Max = manager.MaxSessions
	}
	if c.Sessions.MaxPerIP < 0 {
		c.Sessions.MaxPerIP = 0
	} else if c.Sessions.MaxPerIP == 0 {
		c.Sessions.MaxPerIP = manager.MaxSessionsPerIP
	}
	if c.Sessions.TTL <= 0 {
		c.Sessions.TTL = Duration(manager.TTL)
	}
	if c.Sessions.CleanupInterval <= 0 {
		c.Sessions.CleanupInterval = Duration(manager.CleanupInterval)
	}
	if c.Sessions.Eviction == "" {
		c.Sessions.Eviction = "lru"
	}

	cache := dataset.DefaultCacheConfig()
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = cache.MaxEntries
	}
	if c.Cache.MaxBytes <= 0 {
		c.Cache.MaxBytes = cache.MaxBytes
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return apperr.New(apperr.CodeConfigInvalid).
			WithDetail("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.Sessions.Eviction {
	case "lru", "oldest", "random":
	default:
		return apperr.New(apperr.CodeConfigInvalid).
			WithDetail("sessions.eviction %q is not one of lru, oldest, random", c.Sessions.Eviction)
	}
	if c.Store.RedisAddr != "" && c.Store.SQLDriver != "" {
		return apperr.New(apperr.CodeConfigInvalid).
			WithDetail("store.redis_addr and store.sql_driver are mutually exclusive")
	}
	if (c.Store.SQLDriver == "") != (c.Store.SQLDSN == "") {
		return apperr.New(apperr.CodeConfigInvalid).
			WithDetail("store.sql_driver and store.sql_dsn must be set together")
	}
	return nil
}

// EvictionPolicy maps the configured name onto a manager policy.
func (c *Config) EvictionPolicy() session.EvictionPolicy {
	switch c.Sessions.Eviction {
	case "oldest":
		return session.EvictionOldest
	case "random":
		return session.EvictionRandom
	default:
		return session.EvictionLRU
	}
}

// ManagerConfig builds the session manager configuration.
func (c *Config) ManagerConfig() session.ManagerConfig {
	return session.ManagerConfig{
		MaxSessions:      c.Sessions.Max,
		MaxSessionsPerIP: c.Sessions.MaxPerIP,
		TTL:              c.Sessions.TTL.Std(),
		CleanupInterval:  c.Sessions.CleanupInterval.Std(),
		EvictionPolicy:   c.EvictionPolicy(),
		Cache: dataset.CacheConfig{
			MaxEntries: c.Cache.MaxEntries,
			MaxBytes:   c.Cache.MaxBytes,
		},
	}
}

// ArchiveLimits builds the extraction limits.
func (c *Config) ArchiveLimits() archive.Limits {
	return archive.Limits{
		MaxMembers:          c.Archive.MaxMembers,
		MaxMemberBytes:      c.Archive.MaxMemberBytes,
		MaxTotalBytes:       c.Archive.MaxTotalBytes,
		MaxCompressionRatio: c.Archive.MaxCompressionRatio,
	}
}

// ServerConfig builds the HTTP server configuration.
func (c *Config) ServerConfig() *server.Config {
	sc := server.DefaultConfig()
	sc.Address = c.Address
	sc.DataDir = c.DataDir
	sc.MaxUploadBytes = c.Upload.MaxBytes
	sc.TrustedProxies = c.TrustedProxies
	sc.Archive = c.ArchiveLimits()
	sc.Session = c.ManagerConfig()
	sc.Upload = &upload.Config{
		MaxFileSize:  c.Upload.MaxBytes,
		StagedExpiry: c.Upload.StagedExpiry.Std(),
	}
	return sc
}

// BuildStore opens the configured manifest store. It returns (nil, nil)
// when persistence is disabled, which the manager accepts.
func (c *Config) BuildStore(ctx context.Context) (session.Store, error) {
	switch {
	case c.Store.RedisAddr != "":
		client := redis.NewClient(&redis.Options{
			Addr: c.Store.RedisAddr,
			DB:   c.Store.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, apperr.New(apperr.CodeConfigInvalid).
				WithDetail("redis at %s is unreachable: %v", c.Store.RedisAddr, err)
		}
		return session.NewRedisStore(client), nil

	case c.Store.SQLDriver != "":
		db, err := sql.Open(c.Store.SQLDriver, c.Store.SQLDSN)
		if err != nil {
			return nil, apperr.New(apperr.CodeConfigInvalid).
				WithDetail("sql store: %v", err)
		}
		store := session.NewSQLStore(db, session.WithSQLDialect(c.sqlDialect()))
		if err := store.CreateTable(ctx); err != nil {
			store.Close()
			return nil, apperr.New(apperr.CodeConfigInvalid).
				WithDetail("sql store schema: %v", err)
		}
		return store, nil
	}
	return nil, nil
}

func (c *Config) sqlDialect() session.SQLDialect {
	switch c.Store.SQLDriver {
	case "mysql":
		return session.DialectMySQL
	case "sqlite", "sqlite3":
		return session.DialectSQLite
	default:
		return session.DialectPostgreSQL
	}
}

// SlogLevel maps the configured level name onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Exists reports whether dir holds a config file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}
