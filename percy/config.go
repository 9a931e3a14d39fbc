package percy

import (
	"os"
	"strings"
	"time"
)

const (
	DefaultAddress            = "http://localhost:5338"
	DefaultHealthcheckTimeout = 30 * time.Second
	DefaultSnapshotTimeout    = 600 * time.Second
)

// Config controls where the agent lives and how long calls may take.
type Config struct {
	// Address is the agent base URL.
	Address string

	// HealthcheckTimeout bounds the capability probe and the dom.js fetch.
	HealthcheckTimeout time.Duration

	// SnapshotTimeout bounds snapshot submissions; serialising a large page
	// on the agent side can take minutes.
	SnapshotTimeout time.Duration

	// Debug logs the cause of soft failures.
	Debug bool
}

// DefaultConfig returns a Config for an agent on the default local port.
func DefaultConfig() Config {
	return Config{
		Address:            DefaultAddress,
		HealthcheckTimeout: DefaultHealthcheckTimeout,
		SnapshotTimeout:    DefaultSnapshotTimeout,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by PERCY_CLI_API and
// PERCY_LOGLEVEL=debug.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if addr := strings.TrimSpace(os.Getenv("PERCY_CLI_API")); addr != "" {
		cfg.Address = addr
	}
	cfg.Debug = strings.EqualFold(os.Getenv("PERCY_LOGLEVEL"), "debug")
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	c.Address = strings.TrimRight(c.Address, "/")
	if c.HealthcheckTimeout <= 0 {
		c.HealthcheckTimeout = d.HealthcheckTimeout
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = d.SnapshotTimeout
	}
	return c
}
