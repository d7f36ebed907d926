// Package config provides unified configuration loading for fileforge.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the conversion service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Store         StoreConfig         `yaml:"store"`
	Convert       ConvertConfig       `yaml:"convert"`
	Retention     RetentionConfig     `yaml:"retention"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// StorageConfig holds the filesystem areas used by conversions.
type StorageConfig struct {
	// UploadDir is the scratch area uploaded files land in.
	UploadDir string `yaml:"upload_dir"`
	// ArtifactDir is where completed conversion outputs are published.
	ArtifactDir string `yaml:"artifact_dir"`
	// MaxUploadBytes bounds a single multipart upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// StoreConfig selects and configures the job record store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"` // memory, sqlite, postgres or redis
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ConvertConfig holds conversion execution settings.
type ConvertConfig struct {
	// MaxConcurrentJobs bounds how many conversions run at once.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	// JobTimeout is the single fixed ceiling for one conversion,
	// sized for the heaviest expected operation (OCR, video transcode).
	JobTimeout time.Duration `yaml:"job_timeout"`
	// ScannedTextThreshold is the minimum count of extractable characters
	// below which a document is classified as scanned. Empirical cutoff,
	// not a proven optimum; override per deployment if needed.
	ScannedTextThreshold int `yaml:"scanned_text_threshold"`
	// DownloadGraceDelay is how long after a successful download the
	// artifact sticks around before best-effort deletion.
	DownloadGraceDelay time.Duration `yaml:"download_grace_delay"`

	// External tool binaries. Overridable so deployments can pin paths.
	FFmpegBin    string `yaml:"ffmpeg_bin"`
	SofficeBin   string `yaml:"soffice_bin"`
	TesseractBin string `yaml:"tesseract_bin"`
	SevenZipBin  string `yaml:"sevenzip_bin"`
}

// RetentionConfig holds the age-based sweeper settings.
type RetentionConfig struct {
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	RetentionWindow time.Duration `yaml:"retention_window"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Storage: StorageConfig{
			UploadDir:      "uploads",
			ArtifactDir:    "downloads",
			MaxUploadBytes: 200 << 20, // 200 MB
		},
		Store: StoreConfig{
			Driver: "memory",
			SQLite: SQLiteConfig{
				Path:         "/tmp/fileforge.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Convert: ConvertConfig{
			MaxConcurrentJobs:    4,
			JobTimeout:           5 * time.Minute,
			ScannedTextThreshold: 200,
			DownloadGraceDelay:   60 * time.Second,
			FFmpegBin:            "ffmpeg",
			SofficeBin:           "soffice",
			TesseractBin:         "tesseract",
			SevenZipBin:          "7z",
		},
		Retention: RetentionConfig{
			SweepInterval:   time.Hour,
			RetentionWindow: 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "fileforge",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Storage.UploadDir == "" || c.Storage.ArtifactDir == "" {
		return fmt.Errorf("upload_dir and artifact_dir must be set")
	}

	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}

	if c.Convert.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1")
	}

	if c.Convert.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive")
	}

	if c.Convert.ScannedTextThreshold < 0 {
		return fmt.Errorf("scanned_text_threshold must not be negative")
	}

	if c.Retention.SweepInterval <= 0 || c.Retention.RetentionWindow <= 0 {
		return fmt.Errorf("retention intervals must be positive")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FILEFORGE_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("FILEFORGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("FILEFORGE_UPLOAD_DIR"); v != "" {
		cfg.Storage.UploadDir = v
	}

	if v := os.Getenv("FILEFORGE_ARTIFACT_DIR"); v != "" {
		cfg.Storage.ArtifactDir = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Store.Driver = "sqlite"
			cfg.Store.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Store.Driver = "postgres"
			cfg.Store.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Store.Driver = "redis"
		cfg.Store.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("FILEFORGE_MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Convert.MaxConcurrentJobs = n
		}
	}

	if v := os.Getenv("FILEFORGE_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Convert.JobTimeout = d
		}
	}

	if v := os.Getenv("FILEFORGE_SCANNED_TEXT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Convert.ScannedTextThreshold = n
		}
	}

	if v := os.Getenv("FILEFORGE_RETENTION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.RetentionWindow = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
