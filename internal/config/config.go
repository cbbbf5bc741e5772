package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the paperdex configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Source  SourceConfig  `yaml:"source"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	APIKeys         []string `yaml:"api_keys"`
}

// StoreConfig holds paper store connection settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // postgres, redis (default: postgres)
	DSN              string   `yaml:"dsn"`    // postgres connection string
	Addrs            []string `yaml:"addrs"`  // redis endpoints
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Dimensions       int      `yaml:"dimensions"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// OpenAIConfig holds embedding provider settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SourceConfig holds the submission catalog settings.
type SourceConfig struct {
	BaseURL     string  `yaml:"base_url"`
	VenueID     string  `yaml:"venue_id"`
	Domain      string  `yaml:"domain"`
	RPS         float64 `yaml:"rps"` // max catalog requests per second, <=0 = unthrottled
	PageSize    int     `yaml:"page_size"`
	Concurrency int     `yaml:"concurrency"`
	MaxRetries  int     `yaml:"max_retries"`
	MaxRecords  int     `yaml:"max_records"` // 0 = no cap
}

// IngestConfig holds embedding pipeline settings.
type IngestConfig struct {
	BatchSize  int     `yaml:"batch_size"`
	Workers    int     `yaml:"workers"`
	StaggerMS  int     `yaml:"stagger_ms"`
	MaxRetries int     `yaml:"max_retries"`
	RPS        float64 `yaml:"rps"` // embedding request budget, <=0 = unthrottled
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	CacheSize    int `yaml:"cache_size"`
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 30
	}
	if c.Server.ShutdownSec <= 0 {
		c.Server.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "paperdex:"
	}
	if c.Store.Dimensions <= 0 {
		c.Store.Dimensions = 1536
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "text-embedding-3-small"
	}
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://api.openreview.net"
	}
	if c.Source.VenueID == "" {
		c.Source.VenueID = "ICLR.cc/2026/Conference"
	}
	if c.Source.Domain == "" {
		c.Source.Domain = c.Source.VenueID
	}
	if c.Source.RPS == 0 {
		c.Source.RPS = 2
	}
	if c.Source.PageSize <= 0 {
		c.Source.PageSize = 1000
	}
	if c.Source.Concurrency <= 0 {
		c.Source.Concurrency = 4
	}
	if c.Source.MaxRetries <= 0 {
		c.Source.MaxRetries = 5
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 64
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 2
	}
	if c.Ingest.StaggerMS == 0 {
		c.Ingest.StaggerMS = 500
	}
	if c.Ingest.MaxRetries <= 0 {
		c.Ingest.MaxRetries = 6
	}
	if c.Search.CacheSize <= 0 {
		c.Search.CacheSize = 512
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case "redis", "valkey":
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be postgres or redis, got %q", c.Store.Driver)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
