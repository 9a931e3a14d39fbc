package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/raysh454/percy-chromedp/internal/config"
)

// CLIArgs are the command-line arguments of percy-snapshot.
type CLIArgs struct {
	// ConfigPath is an optional YAML config file.
	ConfigPath string

	// URLs are ad-hoc targets added on top of the config file's targets.
	URLs []string

	// Name is the snapshot name used when a single -url is given.
	Name string

	// Concurrency overrides the configured tab count; 0 means "use config".
	Concurrency int

	// Automate takes automate screenshots instead of DOM snapshots.
	Automate bool

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("empty url")
	}
	*u = append(*u, v)
	return nil
}

// ParseArgs parses a slice of args and returns CLIArgs. It does not read
// os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("percy-snapshot", flag.ContinueOnError)
	var (
		urls        urlList
		configPath  = fs.String("config", "", "YAML config file")
		name        = fs.String("name", "", "Snapshot name for a single -url (defaults to the url)")
		concurrency = fs.Int("concurrency", 0, "Tabs to snapshot at once (0=use config)")
		automate    = fs.Bool("automate", false, "Take automate screenshots instead of DOM snapshots")
	)
	fs.Var(&urls, "url", "Page to snapshot (repeatable)")
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if *concurrency < 0 {
		return nil, fmt.Errorf("-concurrency must not be negative")
	}
	if *name != "" && len(urls) != 1 {
		return nil, fmt.Errorf("-name requires exactly one -url")
	}
	if *configPath == "" && len(urls) == 0 {
		return nil, fmt.Errorf("nothing to snapshot: pass -config or at least one -url")
	}

	return &CLIArgs{
		ConfigPath:  *configPath,
		URLs:        urls,
		Name:        *name,
		Concurrency: *concurrency,
		Automate:    *automate,
		RawArgs:     args,
	}, nil
}

// Apply layers the command line over cfg: -url targets are appended and a
// non-zero -concurrency replaces the configured value.
func (a *CLIArgs) Apply(cfg *config.Config) {
	for _, u := range a.URLs {
		name := u
		if a.Name != "" {
			name = a.Name
		}
		cfg.Targets = append(cfg.Targets, config.TargetConfig{Name: name, URL: u})
	}
	if a.Concurrency > 0 {
		cfg.Concurrency = a.Concurrency
	}
}
