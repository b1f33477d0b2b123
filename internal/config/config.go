package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix is prepended to every environment variable, e.g. GAMEWALLET_SERVER_PORT
const EnvPrefix = "GAMEWALLET"

// ConfigFileEnv names an optional YAML/JSON/TOML config file
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the log level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Type string `mapstructure:"type"`
}

// RedisConfig configures the redis backend
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	PoolSize   int    `mapstructure:"pool_size"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// PostgresConfig configures the postgres backend
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SQLiteConfig configures the sqlite backend
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig holds session token and password hashing settings
type AuthConfig struct {
	// JWTSecret signs session tokens; empty means a random per-process secret
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

// LedgerConfig bounds lock waits and top-up amounts
type LedgerConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// MaxTopUp caps a single top-up; 0 means unlimited
	MaxTopUp int64 `mapstructure:"max_top_up"`
}

// CORSConfig lists the origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")

	v.SetDefault("storage.type", StorageMemory)

	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 50)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("sqlite.path", "gamewallet.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "game-wallet")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("ledger.lock_timeout", 2*time.Second)
	v.SetDefault("ledger.max_top_up", 0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing order of precedence. A .env file in the
// working directory is loaded into the environment first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required when storage.type is redis"))
		}
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required when storage.type is postgres"))
		}
	case StorageSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required when storage.type is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of memory, redis, postgres, sqlite, got %q", c.Storage.Type))
	}

	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Ledger.LockTimeout <= 0 {
		errs = append(errs, errors.New("ledger.lock_timeout must be positive"))
	}
	if c.Ledger.MaxTopUp < 0 {
		errs = append(errs, errors.New("ledger.max_top_up must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses the configured log level
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Level)
	}
	return level, nil
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
