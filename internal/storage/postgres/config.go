package postgres

import "time"

// Config holds PostgreSQL connection settings
type Config struct {
	// DSN is a libpq-style connection string or postgres:// URL
	DSN string

	MaxConns int32

	// LockTimeout bounds how long a mutation waits for an account row lock
	LockTimeout time.Duration
}

// DefaultConfig returns sensible defaults for PostgreSQL configuration
func DefaultConfig() Config {
	return Config{
		MaxConns:    10,
		LockTimeout: 2 * time.Second,
	}
}
