// Package config loads process-wide configuration from an optional YAML file
// with CLAMAV_* environment overrides. Configuration is read once at startup
// and immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// ClamdHost and ClamdPort locate the scanning daemon.
	ClamdHost string `yaml:"clamd_host"`
	ClamdPort int    `yaml:"clamd_port"`

	// MaxConnections bounds the daemon connection pool.
	MaxConnections int `yaml:"max_connections"`
	// MaxQueueSize bounds the pool's wait queue; requests beyond it are
	// rejected immediately.
	MaxQueueSize int `yaml:"max_queue_size"`

	// ConnectRetries and ConnectBackoff govern connection establishment.
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectBackoff time.Duration `yaml:"connect_backoff"`

	// ScanTimeout bounds one scan attempt end to end.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	// ScanRetries is the retry budget for transient transport faults.
	ScanRetries int `yaml:"scan_retries"`
	// RetryDelay is the base delay between scan retries.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxFileSize is the upload ceiling in bytes. The streaming protocol's
	// framing cannot address larger payloads.
	MaxFileSize int64 `yaml:"max_file_size"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:     ":6000",
		ClamdHost:      "localhost",
		ClamdPort:      3310,
		MaxConnections: 5,
		MaxQueueSize:   20,
		ConnectRetries: 10,
		ConnectBackoff: 500 * time.Millisecond,
		ScanTimeout:    5 * time.Minute,
		ScanRetries:    2,
		RetryDelay:     time.Second,
		MaxFileSize:    2 << 30,
		LogLevel:       "info",
		LogPretty:      false,
	}
}

// Load reads configuration from path (skipped when empty) on top of the
// defaults, then applies environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from CLAMAV_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("CLAMAV_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CLAMAV_CLAMD_HOST"); v != "" {
		cfg.ClamdHost = v
	}
	if v := os.Getenv("CLAMAV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	intVars := []struct {
		name string
		dst  *int
	}{
		{"CLAMAV_CLAMD_PORT", &cfg.ClamdPort},
		{"CLAMAV_MAX_CONNECTIONS", &cfg.MaxConnections},
		{"CLAMAV_MAX_QUEUE_SIZE", &cfg.MaxQueueSize},
		{"CLAMAV_CONNECT_RETRIES", &cfg.ConnectRetries},
		{"CLAMAV_SCAN_RETRIES", &cfg.ScanRetries},
	}
	for _, iv := range intVars {
		v := os.Getenv(iv.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", iv.name, err)
		}
		*iv.dst = n
	}

	durVars := []struct {
		name string
		dst  *time.Duration
	}{
		{"CLAMAV_CONNECT_BACKOFF", &cfg.ConnectBackoff},
		{"CLAMAV_SCAN_TIMEOUT", &cfg.ScanTimeout},
		{"CLAMAV_RETRY_DELAY", &cfg.RetryDelay},
	}
	for _, dv := range durVars {
		v := os.Getenv(dv.name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", dv.name, err)
		}
		*dv.dst = d
	}

	if v := os.Getenv("CLAMAV_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for CLAMAV_MAX_FILE_SIZE: %w", err)
		}
		cfg.MaxFileSize = n
	}

	return nil
}

// Validate rejects configurations the pool and protocol cannot honor.
func (c *Config) Validate() error {
	if c.ClamdHost == "" {
		return fmt.Errorf("clamd_host must not be empty")
	}
	if c.ClamdPort <= 0 || c.ClamdPort > 65535 {
		return fmt.Errorf("clamd_port %d out of range", c.ClamdPort)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", c.MaxQueueSize)
	}
	if c.ConnectRetries <= 0 {
		return fmt.Errorf("connect_retries must be positive, got %d", c.ConnectRetries)
	}
	if c.ScanRetries < 0 {
		return fmt.Errorf("scan_retries must not be negative, got %d", c.ScanRetries)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %v", c.ScanTimeout)
	}
	if c.MaxFileSize <= 0 || c.MaxFileSize > 2<<30 {
		return fmt.Errorf("max_file_size must be within (0, 2GiB], got %d", c.MaxFileSize)
	}
	return nil
}
