package cli_test

import (
	"reflect"
	"testing"

	"github.com/raysh454/percy-chromedp/internal/cli"
	"github.com/raysh454/percy-chromedp/internal/config"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()
	args := []string{"-url", "https://a.test", "-url", "https://b.test", "-concurrency", "3", "-automate"}
	got, err := cli.ParseArgs(args)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !reflect.DeepEqual(got.URLs, []string{"https://a.test", "https://b.test"}) {
		t.Errorf("URLs = %v", got.URLs)
	}
	if got.Concurrency != 3 || !got.Automate || got.ConfigPath != "" {
		t.Errorf("got %+v", got)
	}
	if !reflect.DeepEqual(got.RawArgs, args) {
		t.Errorf("RawArgs = %v", got.RawArgs)
	}
}

func TestParseArgs_ConfigOnly(t *testing.T) {
	t.Parallel()
	got, err := cli.ParseArgs([]string{"-config", "percy.yaml"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if got.ConfigPath != "percy.yaml" || len(got.URLs) != 0 || got.Automate {
		t.Errorf("got %+v", got)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()
	cases := map[string][]string{
		"nothing to do":        {},
		"unknown flag":         {"-target", "x"},
		"empty url":            {"-url", " "},
		"negative concurrency": {"-url", "https://a.test", "-concurrency", "-1"},
		"name with two urls":   {"-name", "n", "-url", "https://a.test", "-url", "https://b.test"},
		"positional argument":  {"-url", "https://a.test", "extra"},
	}
	for name, args := range cases {
		args := args
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := cli.ParseArgs(args); err == nil {
				t.Errorf("expected error for %v", args)
			}
		})
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Targets = []config.TargetConfig{{Name: "Home", URL: "https://a.test/"}}

	args, err := cli.ParseArgs([]string{"-config", "x.yaml", "-url", "https://a.test/about", "-name", "About", "-concurrency", "5"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	args.Apply(cfg)

	want := []config.TargetConfig{
		{Name: "Home", URL: "https://a.test/"},
		{Name: "About", URL: "https://a.test/about"},
	}
	if !reflect.DeepEqual(cfg.Targets, want) {
		t.Errorf("Targets = %+v", cfg.Targets)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}

	unnamed, _ := cli.ParseArgs([]string{"-url", "https://b.test/"})
	cfg = config.DefaultConfig()
	unnamed.Apply(cfg)
	if cfg.Targets[0].Name != "https://b.test/" || cfg.Concurrency != 2 {
		t.Errorf("got %+v", cfg)
	}
}
