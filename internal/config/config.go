package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the quakewatch service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	Fetch   FetchConfig   `yaml:"fetch"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// CatalogConfig configures access to the USGS earthquake catalog.
type CatalogConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	QueryPath string        `yaml:"queryPath"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	MaxBytes      int64         `yaml:"maxBytes"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// FetchConfig controls fetch orchestration behaviour.
type FetchConfig struct {
	BatchThreshold   int           `yaml:"batchThreshold"`
	PreviewSize      int           `yaml:"previewSize"`
	ChunkSize        int           `yaml:"chunkSize"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("QUAKEWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			BaseURL:   "https://earthquake.usgs.gov",
			QueryPath: "/fdsnws/event/1/query",
			Timeout:   120 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:       true,
			TTL:           10 * time.Minute,
			MaxBytes:      8 << 20,
			SweepInterval: time.Minute,
		},
		Fetch: FetchConfig{
			BatchThreshold:   500,
			PreviewSize:      100,
			ChunkSize:        500,
			ProgressInterval: 150 * time.Millisecond,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUAKEWATCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("QUAKEWATCH_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("QUAKEWATCH_CATALOG_BASE_URL"); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := os.Getenv("QUAKEWATCH_CATALOG_QUERY_PATH"); v != "" {
		cfg.Catalog.QueryPath = v
	}
	if v := os.Getenv("QUAKEWATCH_CATALOG_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Catalog.Timeout = d
		}
	}
	if v := os.Getenv("QUAKEWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUAKEWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("QUAKEWATCH_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("QUAKEWATCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("QUAKEWATCH_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := os.Getenv("QUAKEWATCH_CACHE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SweepInterval = d
		}
	}
	if v := os.Getenv("QUAKEWATCH_FETCH_BATCH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Fetch.BatchThreshold = n
		}
	}
	if v := os.Getenv("QUAKEWATCH_FETCH_PREVIEW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Fetch.PreviewSize = n
		}
	}
	if v := os.Getenv("QUAKEWATCH_FETCH_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Fetch.ChunkSize = n
		}
	}
	if v := os.Getenv("QUAKEWATCH_FETCH_PROGRESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.ProgressInterval = d
		}
	}
}
