package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// MaxRetries caps optimistic transaction retries for one account
	// mutation before it fails with model.ErrAccountBusy
	MaxRetries int

	// LockTimeout bounds the total time spent retrying a mutation
	LockTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   50,
		LockTimeout:  2 * time.Second,
	}
}
