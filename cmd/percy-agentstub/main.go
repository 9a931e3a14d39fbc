// Command percy-agentstub runs a local stand-in for the Percy agent.
// Usage: go run ./cmd/percy-agentstub [-addr 127.0.0.1:5338] [-mode web|automate|disabled] [-db stub.db]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/percy-chromedp/internal/agentstub"
	"github.com/raysh454/percy-chromedp/logging"
)

func main() {
	cfg := agentstub.DefaultConfig()

	var mode string
	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "listen address")
	flag.StringVar(&mode, "mode", string(cfg.Mode), "build type: web, automate or disabled")
	flag.StringVar(&cfg.CoreVersion, "core-version", cfg.CoreVersion, "x-percy-core-version header (empty sends none)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite file for received snapshots")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	switch m := agentstub.Mode(mode); m {
	case agentstub.ModeWeb, agentstub.ModeAutomate, agentstub.ModeDisabled:
		cfg.Mode = m
	default:
		log.Fatalf("Invalid mode: %s", mode)
	}

	zl, err := logging.NewZapLogger(logging.ZapConfig{Level: *logLevel, Format: "console"})
	if err != nil {
		log.Fatalf("Logger: %v", err)
	}
	defer zl.Sync()

	server, err := agentstub.New(cfg, zl)
	if err != nil {
		log.Fatalf("Stub agent: %v", err)
	}
	defer server.Close()

	fmt.Printf("Percy stub agent on http://%s (%s build)\n", cfg.ListenAddr, cfg.Mode)
	fmt.Printf("Point clients at it with PERCY_CLI_API=http://%s\n", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.ListenAndServe(ctx); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
