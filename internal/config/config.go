package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string
	LogLevel string

	// Auth
	APIKey string

	// Storage
	DBDriver string // sqlite | postgres
	DBDSN    string

	// Search index (optional)
	IndexURL    string
	IndexAPIKey string

	// Bulk download
	Download DownloadConfig

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	ExtractConcurrency int

	// Upload limits
	MaxUploadBytes int64
	MaxEntryBytes  int64

	// Passage defaults
	PassageWords   int
	PassageOverlap int

	// Job state
	JobTTL time.Duration
}

// DownloadConfig mirrors the bulk-download settings file.
type DownloadConfig struct {
	EndpointPrefix string        `yaml:"api_endpoint_prefix"`
	APIKey         string        `yaml:"api_key"`
	URLs           []string      `yaml:"api_urls"`
	OutputDir      string        `yaml:"output_dir"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Timeout        time.Duration `yaml:"timeout"`
}

func Load() (Config, error) {
	cfg := Config{
		Port:     envOr("PORT", "8090"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		APIKey: os.Getenv("SPLGEST_API_KEY"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", "splgest.db"),

		IndexURL:    os.Getenv("INDEX_URL"),
		IndexAPIKey: os.Getenv("INDEX_API_KEY"),

		Download: DownloadConfig{
			EndpointPrefix: os.Getenv("API_ENDPOINT_PREFIX"),
			APIKey:         os.Getenv("API_KEY"),
			URLs:           envList("API_URLS"),
			OutputDir:      envOr("DOWNLOAD_DIR", "data"),
			RequestsPerSec: envFloat("DOWNLOAD_RPS", 1),
			Timeout:        envDuration("DOWNLOAD_TIMEOUT", 5*time.Minute),
		},

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		ExtractConcurrency: envInt("EXTRACT_CONCURRENCY", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 524288000), // 500MB, bulk archives
		MaxEntryBytes:  envInt64("MAX_ENTRY_BYTES", 104857600),  // 100MB per archive member

		PassageWords:   envInt("PASSAGE_WORDS", 300),
		PassageOverlap: envInt("PASSAGE_OVERLAP", 40),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// overlayFile reads the YAML settings file. Keys present in the file win over
// the environment for the download section only.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var d DownloadConfig
	if err := yaml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if d.EndpointPrefix != "" {
		c.Download.EndpointPrefix = d.EndpointPrefix
	}
	if d.APIKey != "" {
		c.Download.APIKey = d.APIKey
	}
	if len(d.URLs) > 0 {
		c.Download.URLs = d.URLs
	}
	if d.OutputDir != "" {
		c.Download.OutputDir = d.OutputDir
	}
	if d.RequestsPerSec > 0 {
		c.Download.RequestsPerSec = d.RequestsPerSec
	}
	if d.Timeout > 0 {
		c.Download.Timeout = d.Timeout
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.ExtractConcurrency <= 0 {
		c.ExtractConcurrency = 4
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 524288000
	}
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = 104857600
	}
	if c.PassageWords <= 0 {
		c.PassageWords = 300
	}
	if c.PassageOverlap < 0 {
		c.PassageOverlap = 0
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
	if c.Download.RequestsPerSec <= 0 {
		c.Download.RequestsPerSec = 1
	}
	if c.Download.Timeout <= 0 {
		c.Download.Timeout = 5 * time.Minute
	}
}

// Validate checks the settings the HTTP service needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("SPLGEST_API_KEY is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
