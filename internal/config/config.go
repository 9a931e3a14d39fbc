// Package config loads settings for the percy-snapshot command: defaults,
// then a YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/percy-chromedp/logging"
	"github.com/raysh454/percy-chromedp/percy"
)

// Config is the top-level command configuration.
type Config struct {
	Agent   AgentConfig    `yaml:"agent"`
	Browser BrowserConfig  `yaml:"browser"`
	Log     LogConfig      `yaml:"log"`
	Targets []TargetConfig `yaml:"targets"`

	// Concurrency bounds how many tabs snapshot at once.
	Concurrency int `yaml:"concurrency"`
}

// AgentConfig locates the Percy agent.
type AgentConfig struct {
	Address            string        `yaml:"address"`
	HealthcheckTimeout time.Duration `yaml:"healthcheck_timeout"`
	SnapshotTimeout    time.Duration `yaml:"snapshot_timeout"`
}

// BrowserConfig controls the Chrome instance driven by chromedp.
type BrowserConfig struct {
	Headless bool `yaml:"headless"`
	// Settle is how long to wait after navigation before serializing.
	Settle time.Duration `yaml:"settle"`
	Width  int           `yaml:"width"`
	Height int           `yaml:"height"`
	// ExecPath overrides Chrome discovery.
	ExecPath string `yaml:"exec_path"`
}

// LogConfig selects the zap logger setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// TargetConfig is one page to snapshot.
type TargetConfig struct {
	Name    string         `yaml:"name"`
	URL     string         `yaml:"url"`
	Options map[string]any `yaml:"options"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Address:            percy.DefaultAddress,
			HealthcheckTimeout: percy.DefaultHealthcheckTimeout,
			SnapshotTimeout:    percy.DefaultSnapshotTimeout,
		},
		Browser: BrowserConfig{
			Headless: true,
			Settle:   500 * time.Millisecond,
			Width:    1280,
			Height:   1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Concurrency: 2,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PERCY_CLI_API"); ok && v != "" {
		c.Agent.Address = v
	}
	if v, ok := lookup("PERCY_LOGLEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("PERCY_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PERCY_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	return nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Agent.Address) == "" {
		errs = append(errs, errors.New("agent.address is empty"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Browser.Width < 0 || c.Browser.Height < 0 {
		errs = append(errs, errors.New("browser viewport must not be negative"))
	}
	seen := make(map[string]int, len(c.Targets))
	for i, t := range c.Targets {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: name is empty", i))
		} else if j, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Errorf("targets[%d]: name %q already used by targets[%d]", i, t.Name, j))
		} else {
			seen[t.Name] = i
		}
		if strings.TrimSpace(t.URL) == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: url is empty", i))
		}
	}
	return errors.Join(errs...)
}

// Percy converts the agent section into a percy client configuration.
func (c *Config) Percy() percy.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return percy.Config{
		Address:            c.Agent.Address,
		HealthcheckTimeout: c.Agent.HealthcheckTimeout,
		SnapshotTimeout:    c.Agent.SnapshotTimeout,
		Debug:              level == logging.LevelDebug,
	}
}

// Zap converts the log section into a zap logger configuration.
func (c *Config) Zap() logging.ZapConfig {
	return logging.ZapConfig{
		Level:  c.Log.Level,
		Format: c.Log.Format,
	}
}
