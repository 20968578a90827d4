// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RetryPolicy controls backoff for transient network failures. The numbers
// are policy, not protocol; tune freely.
type RetryPolicy struct {
	InitialDelay time.Duration `env:"MARLIN_RETRY_INITIAL" envDefault:"500ms"`
	MaxDelay     time.Duration `env:"MARLIN_RETRY_MAX" envDefault:"15s"`
	Multiplier   float64       `env:"MARLIN_RETRY_MULTIPLIER" envDefault:"2.0"`
	MaxAttempts  int           `env:"MARLIN_RETRY_ATTEMPTS" envDefault:"5"`
	Jitter       bool          `env:"MARLIN_RETRY_JITTER" envDefault:"true"`
}

// Config holds everything the binary wires at startup. Flags override the
// parsed values.
type Config struct {
	RelayURL string `env:"MARLIN_RELAY" envDefault:"http://127.0.0.1:8080"`
	DataDir  string `env:"MARLIN_DATADIR"`
	// Store selects the backend: "memory" (volatile) or "sqlite" (durable).
	Store    string `env:"MARLIN_STORE" envDefault:"sqlite"`
	LogLevel string `env:"MARLIN_LOG_LEVEL" envDefault:"info"`

	FetchInterval time.Duration `env:"MARLIN_FETCH_INTERVAL" envDefault:"3s"`
	// FetchWindow is how far behind the fetch cursor each poll reaches, to
	// absorb relay clock skew. Dedupe discards the overlap.
	FetchWindow time.Duration `env:"MARLIN_FETCH_WINDOW" envDefault:"1h"`
	Workers       int           `env:"MARLIN_WORKERS" envDefault:"4"`
	TaskTimeout   time.Duration `env:"MARLIN_TASK_TIMEOUT" envDefault:"10s"`

	// Bounds for the message-before-welcome buffer.
	BufferPerGroup   int `env:"MARLIN_BUFFER_PER_GROUP" envDefault:"256"`
	MaxPendingGroups int `env:"MARLIN_MAX_PENDING_GROUPS" envDefault:"64"`

	Retry RetryPolicy
}

// FromEnv parses a Config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
