// Package config loads the service configuration by layering defaults, an
// optional YAML file and PRODIR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	pstrings "prodir/pkg/platform/strings"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	envPrefix = "PRODIR_"
	envConfig = "PRODIR_CONFIG"
)

// RedisConfig configures the published-snapshot store. An empty URL keeps
// snapshots in process memory.
type RedisConfig struct {
	URL          string        `koanf:"redis_url"`
	PoolSize     int           `koanf:"redis_pool_size"`
	MinIdleConns int           `koanf:"redis_min_idle_conns"`
	DialTimeout  time.Duration `koanf:"redis_dial_timeout"`
	ReadTimeout  time.Duration `koanf:"redis_read_timeout"`
	WriteTimeout time.Duration `koanf:"redis_write_timeout"`
}

// AuthConfig configures bearer token verification. Exactly one of
// HMACSecret and JWKSURL is expected.
type AuthConfig struct {
	HMACSecret  string        `koanf:"jwt_hmac_secret"`
	JWKSURL     string        `koanf:"jwks_url"`
	Issuer      string        `koanf:"jwt_issuer"`
	Leeway      time.Duration `koanf:"jwt_leeway"`
	JWKSRefresh time.Duration `koanf:"jwks_refresh_interval"`
	CacheSize   int           `koanf:"identity_cache_size"`
	CacheTTL    time.Duration `koanf:"identity_cache_ttl"`
}

// GenerationConfig configures the Gemini client and its backoff policy.
// Generation is disabled when APIKey is empty.
type GenerationConfig struct {
	APIKey      string        `koanf:"gemini_api_key"`
	Endpoint    string        `koanf:"gemini_endpoint"`
	Model       string        `koanf:"gemini_model"`
	Timeout     time.Duration `koanf:"gemini_timeout"`
	MaxAttempts int           `koanf:"generation_max_attempts"`
	BaseDelay   time.Duration `koanf:"generation_base_delay"`
	Multiplier  float64       `koanf:"generation_multiplier"`
	MaxDelay    time.Duration `koanf:"generation_max_delay"`
	Jitter      float64       `koanf:"generation_jitter"`
}

// AuditConfig configures the optional Kafka audit sink.
type AuditConfig struct {
	KafkaBrokers     string `koanf:"kafka_brokers"`
	KafkaTopic       string `koanf:"kafka_audit_topic"`
	KafkaPartitions  int32  `koanf:"kafka_audit_partitions"`
	KafkaReplication int16  `koanf:"kafka_audit_replication"`
	BufferSize       int    `koanf:"audit_buffer_size"`
}

// Brokers splits the comma separated broker list.
func (a AuditConfig) Brokers() []string {
	return pstrings.SplitList(a.KafkaBrokers, ",")
}

// RateLimitConfig caps per-caller request rates on the generate and review
// routes. Counters live in Redis when it is configured.
type RateLimitConfig struct {
	Enabled       bool          `koanf:"rate_limit_enabled"`
	GenerateLimit int           `koanf:"rate_limit_generate"`
	ReviewLimit   int           `koanf:"rate_limit_reviews"`
	Window        time.Duration `koanf:"rate_limit_window"`
}

// Config is the full service configuration. Keys are flat so each maps to
// one PRODIR_* variable.
type Config struct {
	Addr              string        `koanf:"addr"`
	LogLevel          string        `koanf:"log_level"`
	LogFormat         string        `koanf:"log_format"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`

	Store          string `koanf:"store"`
	DatabaseURL    string `koanf:"database_url"`
	DBMaxConns     int32  `koanf:"db_max_conns"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`

	Redis      RedisConfig      `koanf:",squash"`
	Auth       AuthConfig       `koanf:",squash"`
	Generation GenerationConfig `koanf:",squash"`
	Audit      AuditConfig      `koanf:",squash"`
	RateLimit  RateLimitConfig  `koanf:",squash"`
}

// New returns the defaults.
func New() *Config {
	return &Config{
		Addr:              ":8080",
		LogLevel:          "info",
		LogFormat:         "json",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		Store:             StoreMemory,
		DBMaxConns:        10,
		MigrateOnStart:    true,
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Auth: AuthConfig{
			Leeway:      30 * time.Second,
			JWKSRefresh: time.Hour,
			CacheSize:   1024,
			CacheTTL:    5 * time.Minute,
		},
		Generation: GenerationConfig{
			Model:       "gemini-2.5-flash-lite",
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			Multiplier:  2,
			MaxDelay:    10 * time.Second,
			Jitter:      0.2,
		},
		Audit: AuditConfig{
			KafkaTopic:       "prodir.audit",
			KafkaPartitions:  3,
			KafkaReplication: 1,
			BufferSize:       10000,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			GenerateLimit: 10,
			ReviewLimit:   30,
			Window:        time.Minute,
		},
	}
}

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. the YAML file named by PRODIR_CONFIG, if set
//  3. PRODIR_* environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// PRODIR_DATABASE_URL -> database_url
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreMemory, StorePostgres, c.Store)
	case c.Store == StorePostgres && c.DatabaseURL == "":
		return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
	case c.DBMaxConns < 1:
		return fmt.Errorf("%w: db_max_conns must be positive", ErrInvalidConfig)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("%w: log_format must be json or text", ErrInvalidConfig)
	case c.Auth.HMACSecret == "" && c.Auth.JWKSURL == "":
		return fmt.Errorf("%w: one of jwt_hmac_secret or jwks_url is required", ErrInvalidConfig)
	case c.Auth.HMACSecret != "" && c.Auth.JWKSURL != "":
		return fmt.Errorf("%w: jwt_hmac_secret and jwks_url are mutually exclusive", ErrInvalidConfig)
	case c.Auth.CacheSize < 1:
		return fmt.Errorf("%w: identity_cache_size must be positive", ErrInvalidConfig)
	case c.Generation.MaxAttempts < 1:
		return fmt.Errorf("%w: generation_max_attempts must be at least 1", ErrInvalidConfig)
	case c.Generation.Multiplier < 1:
		return fmt.Errorf("%w: generation_multiplier must be >= 1", ErrInvalidConfig)
	case c.Generation.Jitter < 0 || c.Generation.Jitter > 1:
		return fmt.Errorf("%w: generation_jitter must be within [0,1]", ErrInvalidConfig)
	case c.RateLimit.Enabled && c.RateLimit.Window <= 0:
		return fmt.Errorf("%w: rate_limit_window must be positive", ErrInvalidConfig)
	}
	return nil
}
