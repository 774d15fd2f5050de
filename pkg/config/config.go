// Package config loads service configuration from an optional YAML file
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and environment are read.
const (
	DefaultPort        = "8080"
	DefaultMetricsPort = "9090"
	DefaultNATSURL     = "nats://localhost:4222"
	DefaultCollection  = "dtc_catalog"
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultEmbedModel  = "nomic-embed-text"
	DefaultRateLimit   = 20
	DefaultRateBurst   = 40
	DefaultSearchTTL   = time.Hour
)

// DotEnvFile is loaded, when present, before environment overrides apply.
// Variables already set in the process environment win.
var DotEnvFile = ".env"

// Config is shared by the API, the worker and the CLI.
// Backends with an empty URL are disabled.
type Config struct {
	Port        string `yaml:"port"`
	MetricsPort string `yaml:"metrics_port"`
	CORSOrigin  string `yaml:"cors_origin"`
	FleetFile   string `yaml:"fleet_file"`

	NATS      NATSConfig      `yaml:"nats"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type Neo4jConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Database string `yaml:"database"`
}

// Enabled reports whether report history is configured.
func (c Neo4jConfig) Enabled() bool { return c.URL != "" }

type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

// Enabled reports whether DTC search is configured.
func (c QdrantConfig) Enabled() bool { return c.URL != "" }

type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// RedisConfig backs the DTC search cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether the search cache is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// RateLimitConfig is per client IP. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		Port:        DefaultPort,
		MetricsPort: DefaultMetricsPort,
		CORSOrigin:  "*",
		NATS:        NATSConfig{URL: DefaultNATSURL},
		Neo4j:       Neo4jConfig{User: "neo4j"},
		Qdrant:      QdrantConfig{Collection: DefaultCollection},
		Ollama:      OllamaConfig{URL: DefaultOllamaURL, Model: DefaultEmbedModel},
		Redis:       RedisConfig{TTL: DefaultSearchTTL},
		RateLimit:   RateLimitConfig{RPS: DefaultRateLimit, Burst: DefaultRateBurst},
	}
}

// Load reads path (skipped when empty), applies DotEnvFile and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", DotEnvFile, err)
	}
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.MetricsPort = envOr("METRICS_PORT", c.MetricsPort)
	c.CORSOrigin = envOr("CORS_ORIGIN", c.CORSOrigin)
	c.FleetFile = envOr("FLEET_FILE", c.FleetFile)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Neo4j.URL = envOr("NEO4J_URL", c.Neo4j.URL)
	c.Neo4j.User = envOr("NEO4J_USER", c.Neo4j.User)
	c.Neo4j.Pass = envOr("NEO4J_PASS", c.Neo4j.Pass)
	c.Qdrant.URL = envOr("QDRANT_URL", c.Qdrant.URL)
	c.Qdrant.Collection = envOr("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.Ollama.URL = envOr("OLLAMA_URL", c.Ollama.URL)
	c.Ollama.Model = envOr("EMBED_MODEL", c.Ollama.Model)
	c.Redis.Addr = envOr("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOr("REDIS_PASSWORD", c.Redis.Password)
	if v, err := time.ParseDuration(os.Getenv("SEARCH_CACHE_TTL")); err == nil {
		c.Redis.TTL = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64); err == nil {
		c.RateLimit.RPS = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks ports and the settings of each enabled backend.
func (c *Config) Validate() error {
	var errs []error
	if err := validPort("port", c.Port); err != nil {
		errs = append(errs, err)
	}
	if err := validPort("metrics_port", c.MetricsPort); err != nil {
		errs = append(errs, err)
	}
	if c.Neo4j.Enabled() && c.Neo4j.User == "" {
		errs = append(errs, errors.New("neo4j.user is required when neo4j.url is set"))
	}
	if c.Qdrant.Enabled() {
		if c.Qdrant.Collection == "" {
			errs = append(errs, errors.New("qdrant.collection is required when qdrant.url is set"))
		}
		if c.Ollama.URL == "" || c.Ollama.Model == "" {
			errs = append(errs, errors.New("ollama.url and ollama.model are required when qdrant.url is set"))
		}
	}
	if c.Redis.Enabled() && c.Redis.TTL <= 0 {
		errs = append(errs, errors.New("redis.ttl must be positive when redis.addr is set"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("rate_limit.rps must not be negative"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.burst must be positive"))
	}
	return errors.Join(errs...)
}

func validPort(field, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%s %q is not a valid port", field, v)
	}
	return nil
}
