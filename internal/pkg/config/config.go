package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	UserStoreMongo    = "mongo"
	UserStorePostgres = "postgres"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// BcryptCost is the work factor for stored password hashes.
	BcryptCost int `env:"BCRYPT_COST, default=10"`

	// UserStore selects the backend for users and the audit trail.
	UserStore string `env:"USER_STORE, default=mongo"`

	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Session  SessionConfig
	Audit    AuditConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=accounts"`
}

type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN, default=postgres://localhost:5432/accounts?sslmode=disable"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// SessionConfig selects where live sessions are kept and whether they expire.
// A TTL of zero means sessions live until logout or account deletion.
type SessionConfig struct {
	Store        string        `env:"SESSION_STORE,           default=memory"`
	TTL          time.Duration `env:"SESSION_TTL,             default=0s"`
	JanitorEvery time.Duration `env:"SESSION_JANITOR_INTERVAL, default=1m"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate rejects settings that parse but make no sense.
func (c *Config) Validate() error {
	switch c.UserStore {
	case UserStoreMongo, UserStorePostgres:
	default:
		return fmt.Errorf("config: unknown USER_STORE %q", c.UserStore)
	}
	switch c.Session.Store {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.Session.Store)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("config: SESSION_TTL must not be negative")
	}
	if c.Session.TTL > 0 && c.Session.JanitorEvery <= 0 {
		return fmt.Errorf("config: SESSION_JANITOR_INTERVAL must be positive when SESSION_TTL is set")
	}
	return nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := load(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
