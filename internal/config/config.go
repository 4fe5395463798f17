package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"photo-discovery/internal/discovery"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/memory"
	"photo-discovery/internal/session"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	// MaxPageSize is the largest accepted page size.
	MaxPageSize = 10000
	// DefaultCacheCapacityBytes is the default artifact cache capacity (64 MiB).
	DefaultCacheCapacityBytes = 64 << 20
)

// Config holds all application configuration
type Config struct {
	PageSize           int     `yaml:"page_size"`
	CacheCapacityBytes int64   `yaml:"cache_capacity_bytes"`
	HighWatermark      float64 `yaml:"high_watermark"`
	CriticalWatermark  float64 `yaml:"critical_watermark"`
	// MemoryLimitBytes is the limit watermarks apply to; 0 uses GOMEMLIMIT.
	MemoryLimitBytes int64         `yaml:"memory_limit_bytes"`
	SampleInterval   time.Duration `yaml:"sample_interval"`

	Recursive     bool             `yaml:"recursive"`
	SkipHidden    bool             `yaml:"skip_hidden"`
	Filter        discovery.Filter `yaml:"filter"`
	Order         discovery.Order  `yaml:"order"`
	ReadAhead     int              `yaml:"read_ahead"`
	CriticalPause time.Duration    `yaml:"critical_pause"`
	// ListingTTL bounds how long a folder listing is reused while the
	// folder's mtime is unchanged; 0 disables the listing cache.
	ListingTTL time.Duration `yaml:"listing_ttl"`
	// BatchTimeout bounds each NextBatch call; 0 means no timeout.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// DatabasePath enables the persistent artifact tier when set.
	DatabasePath   string        `yaml:"database_path"`
	ThumbnailSize  int           `yaml:"thumbnail_size"`
	ArtifactMaxAge time.Duration `yaml:"artifact_max_age"`

	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
	Watch       bool   `yaml:"watch"`
}

// Defaults returns a configuration with default values
func Defaults() *Config {
	engine := discovery.DefaultOptions()
	mem := memory.DefaultConfig()
	return &Config{
		PageSize:           100,
		CacheCapacityBytes: DefaultCacheCapacityBytes,
		HighWatermark:      mem.HighWaterMark,
		CriticalWatermark:  mem.CriticalWaterMark,
		SampleInterval:     mem.SampleInterval,
		Recursive:          engine.Recursive,
		SkipHidden:         engine.SkipHidden,
		Filter:             engine.Filter,
		Order:              engine.Order,
		ReadAhead:          engine.ReadAhead,
		CriticalPause:      engine.CriticalPause,
		ListingTTL:         time.Minute,
		ThumbnailSize:      200,
		ArtifactMaxAge:     time.Hour,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// ApplyEnv overlays PHOTO_* environment variables onto c.
func (c *Config) ApplyEnv() {
	c.PageSize = getEnvInt("PHOTO_PAGE_SIZE", c.PageSize)
	c.CacheCapacityBytes = int64(getEnvInt("PHOTO_CACHE_CAPACITY_BYTES", int(c.CacheCapacityBytes)))
	c.HighWatermark = getEnvFloat("PHOTO_HIGH_WATERMARK", c.HighWatermark)
	c.CriticalWatermark = getEnvFloat("PHOTO_CRITICAL_WATERMARK", c.CriticalWatermark)
	c.MemoryLimitBytes = int64(getEnvInt("PHOTO_MEMORY_LIMIT_BYTES", int(c.MemoryLimitBytes)))
	c.SampleInterval = getEnvDuration("PHOTO_SAMPLE_INTERVAL", c.SampleInterval)
	c.Recursive = getEnvBool("PHOTO_RECURSIVE", c.Recursive)
	c.SkipHidden = getEnvBool("PHOTO_SKIP_HIDDEN", c.SkipHidden)
	c.Filter = discovery.Filter(getEnv("PHOTO_FILTER", string(c.Filter)))
	c.Order = discovery.Order(getEnv("PHOTO_ORDER", string(c.Order)))
	c.ReadAhead = getEnvInt("PHOTO_READ_AHEAD", c.ReadAhead)
	c.CriticalPause = getEnvDuration("PHOTO_CRITICAL_PAUSE", c.CriticalPause)
	c.ListingTTL = getEnvDuration("PHOTO_LISTING_TTL", c.ListingTTL)
	c.BatchTimeout = getEnvDuration("PHOTO_BATCH_TIMEOUT", c.BatchTimeout)
	c.DatabasePath = getEnv("PHOTO_DATABASE_PATH", c.DatabasePath)
	c.ThumbnailSize = getEnvInt("PHOTO_THUMBNAIL_SIZE", c.ThumbnailSize)
	c.ArtifactMaxAge = getEnvDuration("PHOTO_ARTIFACT_MAX_AGE", c.ArtifactMaxAge)
	c.MetricsAddr = getEnv("PHOTO_METRICS_ADDR", c.MetricsAddr)
	c.Watch = getEnvBool("PHOTO_WATCH", c.Watch)
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be in 1..%d, got %d", ErrInvalidConfig, MaxPageSize, c.PageSize)
	}
	if c.CacheCapacityBytes <= 0 {
		return fmt.Errorf("%w: cache_capacity_bytes must be positive, got %d", ErrInvalidConfig, c.CacheCapacityBytes)
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("%w: negative batch_timeout %v", ErrInvalidConfig, c.BatchTimeout)
	}
	if c.ThumbnailSize < 1 {
		return fmt.Errorf("%w: thumbnail_size must be positive, got %d", ErrInvalidConfig, c.ThumbnailSize)
	}
	if c.ListingTTL < 0 {
		return fmt.Errorf("%w: negative listing_ttl %v", ErrInvalidConfig, c.ListingTTL)
	}
	if c.ArtifactMaxAge < 0 {
		return fmt.Errorf("%w: negative artifact_max_age %v", ErrInvalidConfig, c.ArtifactMaxAge)
	}
	if err := c.MemoryConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.EngineOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.DatabasePath != "" {
		if info, err := os.Stat(filepath.Dir(c.DatabasePath)); err != nil || !info.IsDir() {
			return fmt.Errorf("%w: database directory %s does not exist", ErrInvalidConfig, filepath.Dir(c.DatabasePath))
		}
	}
	return nil
}

// EngineOptions returns the discovery options c describes.
func (c *Config) EngineOptions() discovery.Options {
	return discovery.Options{
		Recursive:     c.Recursive,
		SkipHidden:    c.SkipHidden,
		Filter:        c.Filter,
		Order:         c.Order,
		ReadAhead:     c.ReadAhead,
		CriticalPause: c.CriticalPause,
	}
}

// MemoryConfig returns the memory monitor configuration c describes.
func (c *Config) MemoryConfig() memory.Config {
	return memory.Config{
		MemoryLimitBytes:  c.MemoryLimitBytes,
		HighWaterMark:     c.HighWatermark,
		CriticalWaterMark: c.CriticalWatermark,
		SampleInterval:    c.SampleInterval,
	}
}

// SessionOptions returns the session options c describes.
func (c *Config) SessionOptions() session.Options {
	return session.Options{BatchTimeout: c.BatchTimeout}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, then validates it. Command-line flags are
// applied by the caller before Validate is called again.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
		logging.Debug("Loaded configuration file %s", path)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Log prints the effective configuration in the startup banner style.
func (c *Config) Log() {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  PAGE_SIZE:           %d", c.PageSize)
	logging.Info("  CACHE_CAPACITY:      %s", formatBytes(c.CacheCapacityBytes))
	logging.Info("  WATERMARKS:          high=%.2f critical=%.2f", c.HighWatermark, c.CriticalWatermark)
	if c.MemoryLimitBytes > 0 {
		logging.Info("  MEMORY_LIMIT:        %s", formatBytes(c.MemoryLimitBytes))
	} else {
		logging.Info("  MEMORY_LIMIT:        from GOMEMLIMIT")
	}
	logging.Info("  SAMPLE_INTERVAL:     %v", c.SampleInterval)
	logging.Info("  RECURSIVE:           %v", c.Recursive)
	logging.Info("  SKIP_HIDDEN:         %v", c.SkipHidden)
	logging.Info("  FILTER:              %s", c.Filter)
	logging.Info("  ORDER:               %s", c.Order)
	logging.Info("  READ_AHEAD:          %d", c.ReadAhead)
	logging.Info("  CRITICAL_PAUSE:      %v", c.CriticalPause)
	logging.Info("  LISTING_TTL:         %v", c.ListingTTL)
	logging.Info("  BATCH_TIMEOUT:       %v", c.BatchTimeout)
	logging.Info("  THUMBNAIL_SIZE:      %d", c.ThumbnailSize)
	logging.Info("  ARTIFACT_MAX_AGE:    %v", c.ArtifactMaxAge)
	logging.Info("  DATABASE:            %s", orDisabled(c.DatabasePath))
	logging.Info("  METRICS_ADDR:        %s", orDisabled(c.MetricsAddr))
	logging.Info("  WATCH:               %v", c.Watch)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Info("")
}

func orDisabled(s string) string {
	if s == "" {
		return "DISABLED"
	}
	return s
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
