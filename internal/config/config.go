// Package config loads the layered gotrawl configuration: built-in defaults,
// an optional YAML config file, GOTRAWL_-prefixed environment variables, and
// runtime overrides supplied by the CLI, in ascending precedence.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Identity constants shared by the loader and the CLI.
const (
	EnvPrefix  = "GOTRAWL"
	ConfigName = "gotrawl"
)

// Config is the fully resolved configuration tree.
type Config struct {
	// Crawl engine keys. Flat names follow the documented key table.
	Workers               int      `mapstructure:"default-thread-count"`
	CommandTimeoutSeconds int      `mapstructure:"command-timeout-seconds"`
	MaxRecursionDepth     int      `mapstructure:"max-recursion-depth"`
	TempDir               string   `mapstructure:"temp-dir"`
	OCRLanguages          []string `mapstructure:"ocr-languages"`
	OCRMinText            int      `mapstructure:"ocr-min-text"`
	OCRMaxImages          int      `mapstructure:"ocr-max-images"`
	OCRDisabled           bool     `mapstructure:"ocr-disabled"`
	AudioDisabled         bool     `mapstructure:"audio-disabled"`
	ImagesDir             string   `mapstructure:"images-dir"`
	ExcludeDirs           []string `mapstructure:"exclude-dirs"`
	DedupeEnabled         bool     `mapstructure:"dedupe-enabled"`
	DedupeHash            string   `mapstructure:"dedupe-hash"`
	CSVBufferBytes        int      `mapstructure:"csv-buffer-bytes"`
	SessionBackend        string   `mapstructure:"session-backend"`
	RateLimit             float64  `mapstructure:"rate-limit"`
	LogLevel              string   `mapstructure:"log-level"`
	LogFile               string   `mapstructure:"log-file"`
	SecretsFile           string   `mapstructure:"secrets-file"`

	Index  IndexConfig  `mapstructure:"index"`
	Server ServerConfig `mapstructure:"server"`
}

// IndexConfig configures the search index store and bridge.
type IndexConfig struct {
	// DB is the index database path. Empty means the per-user data dir.
	DB string `mapstructure:"db"`

	// BatchSize is the bridge upsert transaction size.
	BatchSize int `mapstructure:"batch-size"`
}

// ServerConfig configures the read-only HTTP façade.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Session backend names.
const (
	SessionBackendSQLite = "sqlite"
	SessionBackendText   = "text"
)

// Default values for every recognized key.
const (
	DefaultWorkers               = 4
	DefaultCommandTimeoutSeconds = 60
	DefaultMaxRecursionDepth     = 5
	DefaultOCRMinText            = 100
	DefaultOCRMaxImages          = 8
	DefaultDedupeHash            = "md5"
	DefaultCSVBufferBytes        = 64 * 1024
	DefaultIndexBatchSize        = 500
)

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("default-thread-count must be >= 1, got %d", c.Workers)
	}
	if c.CommandTimeoutSeconds < 1 {
		return fmt.Errorf("command-timeout-seconds must be >= 1, got %d", c.CommandTimeoutSeconds)
	}
	if c.MaxRecursionDepth < 0 {
		return fmt.Errorf("max-recursion-depth must be >= 0, got %d", c.MaxRecursionDepth)
	}
	if c.CSVBufferBytes < 0 {
		return fmt.Errorf("csv-buffer-bytes must be >= 0, got %d", c.CSVBufferBytes)
	}
	switch strings.ToLower(c.DedupeHash) {
	case "md5", "sha1", "sha256":
	default:
		return fmt.Errorf("dedupe-hash must be one of md5, sha1, sha256; got %q", c.DedupeHash)
	}
	switch c.SessionBackend {
	case SessionBackendSQLite, SessionBackendText:
	default:
		return fmt.Errorf("session-backend must be %q or %q, got %q",
			SessionBackendSQLite, SessionBackendText, c.SessionBackend)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must be >= 0, got %v", c.RateLimit)
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index.batch-size must be >= 1, got %d", c.Index.BatchSize)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// CommandTimeout returns the default extractor deadline as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}
