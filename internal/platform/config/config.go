// Package config loads server configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAddr            = ":8080"
	DefaultEnvironment     = "development"
	DefaultDerivedCacheTTL = 10 * time.Minute
	DefaultTxTimeout       = 5 * time.Second
	DefaultBulkConcurrency = 16
	DefaultAuditBuffer     = 1024

	ConsentEventsTopic = "consent.events"
	AuditEventsTopic   = "audit.events"
)

// Duration decodes TOML strings such as "30s" into time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the root server configuration.
type Config struct {
	Environment string         `toml:"environment"`
	Log         LogConfig      `toml:"log"`
	Server      ServerConfig   `toml:"server"`
	Database    DatabaseConfig `toml:"database"`
	Redis       RedisConfig    `toml:"redis"`
	Kafka       KafkaConfig    `toml:"kafka"`
	Security    SecurityConfig `toml:"security"`
	Consent     ConsentConfig  `toml:"consent"`
	Bulk        BulkConfig     `toml:"bulk"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	TrustedProxies []string `toml:"trusted_proxies"`
}

type DatabaseConfig struct {
	URL             string   `toml:"url"`
	ReadURL         string   `toml:"read_url"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	TxTimeout       Duration `toml:"tx_timeout"`
	MigrateOnStart  bool     `toml:"migrate_on_start"`
}

type RedisConfig struct {
	URL          string   `toml:"url"`
	PoolSize     int      `toml:"pool_size"`
	MinIdleConns int      `toml:"min_idle_conns"`
	DialTimeout  Duration `toml:"dial_timeout"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type KafkaConfig struct {
	Brokers         string   `toml:"brokers"`
	Acks            string   `toml:"acks"`
	Retries         int      `toml:"retries"`
	DeliveryTimeout Duration `toml:"delivery_timeout"`
	ConsentTopic    string   `toml:"consent_topic"`
	AuditTopic      string   `toml:"audit_topic"`
	AuditGroupID    string   `toml:"audit_group_id"`
}

// Enabled reports whether Kafka publication is configured.
func (k KafkaConfig) Enabled() bool { return strings.TrimSpace(k.Brokers) != "" }

type SecurityConfig struct {
	AdminAPIToken      string `toml:"admin_api_token"`
	IdentityHashPepper string `toml:"identity_hash_pepper"`
}

type ConsentConfig struct {
	DerivedCacheTTL Duration `toml:"derived_cache_ttl"`
}

type BulkConfig struct {
	Concurrency int `toml:"concurrency"`
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Environment: DefaultEnvironment,
		Log:         LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Addr:         DefaultAddr,
			ReadTimeout:  Duration{10 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
			IdleTimeout:  Duration{120 * time.Second},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration{5 * time.Minute},
			TxTimeout:       Duration{DefaultTxTimeout},
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  Duration{5 * time.Second},
			ReadTimeout:  Duration{3 * time.Second},
			WriteTimeout: Duration{3 * time.Second},
		},
		Kafka: KafkaConfig{
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: Duration{30 * time.Second},
			ConsentTopic:    ConsentEventsTopic,
			AuditTopic:      AuditEventsTopic,
			AuditGroupID:    "cidledger-audit-sink",
		},
		Consent: ConsentConfig{DerivedCacheTTL: Duration{DefaultDerivedCacheTTL}},
		Bulk:    BulkConfig{Concurrency: DefaultBulkConcurrency},
	}
}

// Load builds the configuration. path may be empty, in which case
// CIDLEDGER_CONFIG is consulted; a missing file is not an error.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv("CIDLEDGER_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("CIDLEDGER_ADDR", &cfg.Server.Addr)
	setString("DATABASE_URL", &cfg.Database.URL)
	setString("DATABASE_READ_URL", &cfg.Database.ReadURL)
	setString("REDIS_URL", &cfg.Redis.URL)
	setString("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	setString("ADMIN_API_TOKEN", &cfg.Security.AdminAPIToken)
	setString("IDENTITY_HASH_PEPPER", &cfg.Security.IdentityHashPepper)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("ENVIRONMENT", &cfg.Environment)

	if v := getenv("DERIVED_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DERIVED_CACHE_TTL: %w", err)
		}
		cfg.Consent.DerivedCacheTTL = Duration{d}
	}
	if v := getenv("MIGRATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MIGRATE_ON_START: %w", err)
		}
		cfg.Database.MigrateOnStart = b
	}
	if v := getenv("TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}
	return nil
}

// IsProduction reports whether the server runs with production safeguards.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects configurations that would run insecurely in production.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address must not be empty")
	}
	if c.Bulk.Concurrency < 1 {
		return errors.New("bulk concurrency must be at least 1")
	}
	if c.IsProduction() {
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required in production")
		}
		if len(c.Security.IdentityHashPepper) < 32 {
			return errors.New("IDENTITY_HASH_PEPPER must be at least 32 bytes in production")
		}
	}
	return nil
}
