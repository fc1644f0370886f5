// Package config loads grantguard settings: defaults, then an optional YAML
// file, then .env and process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ChainID   int64           `yaml:"chain_id"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Explorer  ExplorerConfig  `yaml:"explorer"`
	Detection DetectionConfig `yaml:"detection"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
}

type IndexerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ExplorerConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`

	// pause PaceDelay before every PaceEvery-th call
	PaceEvery       int           `yaml:"pace_every"`
	PaceDelay       time.Duration `yaml:"pace_delay"`
	WalletPaceDelay time.Duration `yaml:"wallet_pace_delay"`
}

type DetectionConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	RetryAttempts       int           `yaml:"retry_attempts"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay       time.Duration `yaml:"retry_max_delay"`
	WalletConcurrency   int           `yaml:"wallet_concurrency"`
	// wallet and block enrichment stops once the round ends within this window
	EnrichCutoff time.Duration `yaml:"enrich_cutoff"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	RocksPath   string `yaml:"rocks_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Group   string   `yaml:"group"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		ChainID: 42161,
		Indexer: IndexerConfig{
			BaseURL: "https://grants-stack-indexer.gitcoin.co/data",
			Timeout: 30 * time.Second,
		},
		Explorer: ExplorerConfig{
			BaseURL:         "https://api.arbiscan.io/api",
			Timeout:         30 * time.Second,
			PaceEvery:       5,
			PaceDelay:       time.Second,
			WalletPaceDelay: 500 * time.Millisecond,
		},
		Detection: DetectionConfig{
			SimilarityThreshold: 0.9995,
			RetryAttempts:       3,
			RetryBaseDelay:      500 * time.Millisecond,
			RetryMaxDelay:       5 * time.Second,
			WalletConcurrency:   1,
			EnrichCutoff:        48 * time.Hour,
		},
		Store: StoreConfig{
			Driver:    "rocks",
			RocksPath: "./data/grantguard.db",
		},
		Cache: CacheConfig{TTL: 10 * time.Minute},
		Kafka: KafkaConfig{Topic: "grantguard.events", Group: "grantguard.writer"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path (optional), .env files (optional) and the environment.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is normal outside development
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.clamp()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&c.Explorer.APIKey, "EXPLORER_API_KEY")
	setStr(&c.Explorer.BaseURL, "EXPLORER_URL")
	setStr(&c.Indexer.BaseURL, "INDEXER_URL")
	setStr(&c.Store.Driver, "STORE_DRIVER")
	setStr(&c.Store.RocksPath, "ROCKS_PATH")
	setStr(&c.Store.PostgresDSN, "PG_DSN")
	setStr(&c.Cache.RedisURL, "REDIS_URL")
	setStr(&c.Kafka.Topic, "KAFKA_TOPIC")
	setStr(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = SplitCSV(v)
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		c.ChainID = n
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SIMILARITY_THRESHOLD: %w", err)
		}
		c.Detection.SimilarityThreshold = f
	}
	if v := os.Getenv("WALLET_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WALLET_CONCURRENCY: %w", err)
		}
		c.Detection.WalletConcurrency = n
	}
	return nil
}

func (c *Config) clamp() {
	c.Detection.RetryAttempts = clampInt(c.Detection.RetryAttempts, 1, 10)
	c.Detection.WalletConcurrency = clampInt(c.Detection.WalletConcurrency, 1, 32)
	c.Explorer.PaceEvery = clampInt(c.Explorer.PaceEvery, 0, 1000)
}

func (c Config) Validate() error {
	var errs []error
	if t := c.Detection.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold %v out of (0,1]", t))
	}
	switch c.Store.Driver {
	case "memory":
	case "rocks":
		if c.Store.RocksPath == "" {
			errs = append(errs, errors.New("store.rocks_path required for rocks driver"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn (PG_DSN) required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Explorer.BaseURL == "" {
		errs = append(errs, errors.New("explorer.base_url required"))
	}
	if c.Indexer.BaseURL == "" {
		errs = append(errs, errors.New("indexer.base_url required"))
	}
	return errors.Join(errs...)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
