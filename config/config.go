// Package config loads the console configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"slices"
	"time"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides api.key when set.
const EnvAPIKey = "ENTCACHE_API_KEY"

var (
	providers = []string{"ristretto", "bigcache", "redis"}
	codecs    = []string{"json", "cbor", "msgpack", "protobuf"}
	genStores = []string{"local", "redis"}
	backends  = []string{"zap", "logrus", "slog", "none"}
	levels    = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Locale  string        `yaml:"locale"`
	Catalog string        `yaml:"catalog_dir"` // empty => built-in catalogs
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type APIConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Namespace      string        `yaml:"namespace"`
	Provider       string        `yaml:"provider"`
	Codec          string        `yaml:"codec"`
	GenStore       string        `yaml:"genstore"`
	EntityTTL      time.Duration `yaml:"entity_ttl"`
	QueryTTL       time.Duration `yaml:"query_ttl"`
	MaxDecodeBytes int           `yaml:"max_decode_bytes"`
	Disabled       bool          `yaml:"disabled"`

	Ristretto RistrettoConfig `yaml:"ristretto"`
	BigCache  BigCacheConfig  `yaml:"bigcache"`
}

type RistrettoConfig struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

type BigCacheConfig struct {
	Shards     int `yaml:"shards"`
	HardMaxMB  int `yaml:"hard_max_mb"`
	MaxEntryKB int `yaml:"max_entry_kb"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type LogConfig struct {
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	// Hooks logs store events (evictions, patches, self-heal) as well.
	Hooks bool `yaml:"hooks"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration that runs against a local API with an
// in-process cache.
func Default() Config {
	return Config{
		API:    APIConfig{Endpoint: "http://localhost:3000/graphql", Timeout: 30 * time.Second},
		Locale: "en",
		Cache: CacheConfig{
			Namespace: "console",
			Provider:  "ristretto",
			Codec:     "json",
			GenStore:  "local",
			EntityTTL: 10 * time.Minute,
			QueryTTL:  5 * time.Minute,
			Ristretto: RistrettoConfig{NumCounters: 1e6, MaxCost: 1e5, BufferItems: 64},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Log:   LogConfig{Backend: "zap", Level: "info"},
	}
}

// Load reads path over the defaults, applies the environment and validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return Config{}, zerr.Wrap(err, "failed to read config file")
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, zerr.Wrap(err, "failed to parse config file")
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv() {
	if k := os.Getenv(EnvAPIKey); k != "" {
		c.API.Key = k
	}
}

func (c Config) Validate() error {
	if c.API.Endpoint == "" {
		return zerr.New("api.endpoint is required")
	}
	if c.Cache.Namespace == "" {
		return zerr.New("cache.namespace is required")
	}
	if err := oneOf("cache.provider", c.Cache.Provider, providers); err != nil {
		return err
	}
	if err := oneOf("cache.codec", c.Cache.Codec, codecs); err != nil {
		return err
	}
	if err := oneOf("cache.genstore", c.Cache.GenStore, genStores); err != nil {
		return err
	}
	if err := oneOf("log.backend", c.Log.Backend, backends); err != nil {
		return err
	}
	if err := oneOf("log.level", c.Log.Level, levels); err != nil {
		return err
	}
	if c.Cache.Provider == "redis" && c.Cache.GenStore != "redis" {
		// evictions would not reach the other replicas
		return zerr.With(zerr.New("redis provider requires the redis genstore"), "genstore", c.Cache.GenStore)
	}
	if c.Cache.EntityTTL < 0 || c.Cache.QueryTTL < 0 || c.API.Timeout < 0 {
		return zerr.New("durations must not be negative")
	}
	return nil
}

func oneOf(field, v string, allowed []string) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	return zerr.With(zerr.With(zerr.New("unsupported value"), "field", field), "value", v)
}
