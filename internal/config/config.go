// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
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
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Vision captioner
	CaptionEnabled bool          `yaml:"caption_enabled"`
	CaptionBaseURL string        `yaml:"caption_base_url"`
	CaptionModel   string        `yaml:"caption_model"`
	CaptionAPIKey  string        `yaml:"caption_api_key"`
	CaptionTimeout time.Duration `yaml:"caption_timeout"`

	// Retrieval index; empty URL disables indexing
	IndexURL         string `yaml:"index_url"`
	IndexAPIKey      string `yaml:"index_api_key"`
	IndexBatchTokens int    `yaml:"index_batch_tokens"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`
	PageWorkers  int `yaml:"page_workers"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// Documents without text are built and chunked instead of rejected.
	AllowImageOnly bool `yaml:"allow_image_only"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		LogLevel:             "info",
		CaptionModel:         "llava",
		CaptionTimeout:       2 * time.Minute,
		IndexBatchTokens:     4000,
		WorkerCount:          4,
		MaxQueueSize:         100,
		PageWorkers:          4,
		MaxUploadBytes:       52428800, // 50MB
		JobTTL:               1 * time.Hour,
		PDFFallbackPdftotext: true,
	}
}

// Load applies the YAML file named by DOCBLOCKS_CONFIG (if any) over the
// defaults, then environment overrides.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DOCBLOCKS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.APIKey = envOr("DOCBLOCKS_API_KEY", cfg.APIKey)

	cfg.CaptionEnabled = envBool("CAPTION_ENABLED", cfg.CaptionEnabled)
	cfg.CaptionBaseURL = envOr("CAPTION_BASE_URL", cfg.CaptionBaseURL)
	cfg.CaptionModel = envOr("CAPTION_MODEL", cfg.CaptionModel)
	cfg.CaptionAPIKey = envOr("CAPTION_API_KEY", cfg.CaptionAPIKey)
	cfg.CaptionTimeout = envDuration("CAPTION_TIMEOUT", cfg.CaptionTimeout)

	cfg.IndexURL = envOr("INDEX_URL", cfg.IndexURL)
	cfg.IndexAPIKey = envOr("INDEX_API_KEY", cfg.IndexAPIKey)
	cfg.IndexBatchTokens = envInt("INDEX_BATCH_TOKENS", cfg.IndexBatchTokens)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.PageWorkers = envInt("PAGE_WORKERS", cfg.PageWorkers)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)

	cfg.AllowImageOnly = envBool("ALLOW_IMAGE_ONLY", cfg.AllowImageOnly)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.PageWorkers <= 0 {
		c.PageWorkers = d.PageWorkers
	}
	if c.IndexBatchTokens <= 0 {
		c.IndexBatchTokens = d.IndexBatchTokens
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.CaptionTimeout <= 0 {
		c.CaptionTimeout = d.CaptionTimeout
	}
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCBLOCKS_API_KEY is required")
	}
	if c.CaptionEnabled && c.CaptionBaseURL == "" {
		return fmt.Errorf("CAPTION_BASE_URL is required when captioning is enabled")
	}
	if c.CaptionEnabled && c.CaptionModel == "" {
		return fmt.Errorf("CAPTION_MODEL is required when captioning is enabled")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return level, nil
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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
