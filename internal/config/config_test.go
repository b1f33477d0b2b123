package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no stray .env is loaded
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 50, cfg.Redis.MaxRetries)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
	assert.Equal(t, "gamewallet.db", cfg.SQLite.Path)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "game-wallet", cfg.Auth.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 2*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, int64(0), cfg.Ledger.MaxTopUp)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("GAMEWALLET_SERVER_PORT", "9090")
	t.Setenv("GAMEWALLET_LOG_LEVEL", "debug")
	t.Setenv("GAMEWALLET_STORAGE_TYPE", "postgres")
	t.Setenv("GAMEWALLET_POSTGRES_DSN", "postgres://wallet@localhost/wallet")
	t.Setenv("GAMEWALLET_AUTH_TOKEN_TTL", "1h30m")
	t.Setenv("GAMEWALLET_LEDGER_MAX_TOP_UP", "5000")
	t.Setenv("GAMEWALLET_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, StoragePostgres, cfg.Storage.Type)
	assert.Equal(t, "postgres://wallet@localhost/wallet", cfg.Postgres.DSN)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, int64(5000), cfg.Ledger.MaxTopUp)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "gamewallet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
storage:
  type: sqlite
sqlite:
  path: /var/lib/gamewallet/wallet.db
auth:
  issuer: file-issuer
`), 0o600))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("GAMEWALLET_AUTH_ISSUER", "env-issuer")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage.Type)
	assert.Equal(t, "/var/lib/gamewallet/wallet.db", cfg.SQLite.Path)
	assert.Equal(t, "env-issuer", cfg.Auth.Issuer)
}

func TestLoadMissingConfigFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv(ConfigFileEnv, filepath.Join(dir, "missing.yaml"))

	_, err := Load()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GAMEWALLET_SQLITE_PATH=from-dotenv.db\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("GAMEWALLET_SQLITE_PATH") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.SQLite.Path)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("GAMEWALLET_STORAGE_TYPE", "mongo")

	_, err := Load()
	assert.ErrorContains(t, err, "storage.type must be one of")
}

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Type: StorageMemory},
		SQLite:  SQLiteConfig{Path: "gamewallet.db"},
		Auth:    AuthConfig{Issuer: "game-wallet", TokenTTL: time.Hour, BcryptCost: 10},
		Ledger:  LedgerConfig{LockTimeout: time.Second},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		message string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }, "storage.type"},
		{"redis without url", func(c *Config) { c.Storage.Type = StorageRedis }, "redis.url"},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = StoragePostgres }, "postgres.dsn"},
		{"sqlite without path", func(c *Config) { c.Storage.Type = StorageSQLite; c.SQLite.Path = "" }, "sqlite.path"},
		{"bcrypt cost too high", func(c *Config) { c.Auth.BcryptCost = 40 }, "auth.bcrypt_cost"},
		{"zero token ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"zero lock timeout", func(c *Config) { c.Ledger.LockTimeout = 0 }, "ledger.lock_timeout"},
		{"negative max top-up", func(c *Config) { c.Ledger.MaxTopUp = -1 }, "ledger.max_top_up"},
	}

	valid := validConfig()
	require.NoError(t, valid.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.message)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", "INFO"} {
		_, err := LogConfig{Level: name}.SlogLevel()
		assert.NoError(t, err, name)
	}
}
