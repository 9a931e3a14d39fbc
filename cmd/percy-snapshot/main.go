// Command percy-snapshot opens pages in headless Chrome and sends them to a
// running Percy agent.
//
// Usage:
//
//	percy-snapshot -config percy.yaml
//	percy-snapshot -url https://example.com -name Home
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"

	"github.com/raysh454/percy-chromedp/chromedppage"
	"github.com/raysh454/percy-chromedp/internal/cli"
	"github.com/raysh454/percy-chromedp/internal/config"
	"github.com/raysh454/percy-chromedp/logging"
	"github.com/raysh454/percy-chromedp/percy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "percy-snapshot:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string) error {
	args, err := cli.ParseArgs(argv)
	if err != nil {
		return err
	}
	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return err
	}
	args.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := logging.NewZapLogger(cfg.Zap())
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := zl.With(logging.F("component", "percy-snapshot"))

	client := percy.New(cfg.Percy(),
		percy.WithLogger(zl),
		percy.WithDriver(chromedppage.Driver()))
	defer client.Close()

	status := client.Status(ctx)
	if !status.Enabled() {
		logger.Warn("Percy agent is not running a build; nothing to do",
			logging.F("address", cfg.Agent.Address))
		return nil
	}
	if args.Automate != (status == percy.StatusAutomate) {
		return fmt.Errorf("agent is running a %s build; pass -automate only for automate builds", status)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Browser.Headless),
		chromedp.WindowSize(cfg.Browser.Width, cfg.Browser.Height))
	if cfg.Browser.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}

	type result struct {
		opened bool
		data   json.RawMessage
	}
	results := make([]result, len(cfg.Targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, target := range cfg.Targets {
		i, target := i, target
		g.Go(func() error {
			page, closeTab, err := chromedppage.Open(browserCtx, target.URL, cfg.Browser.Settle)
			if err != nil {
				logger.Error("open page", logging.F("url", target.URL), logging.Err(err))
				return nil
			}
			defer closeTab()

			var data json.RawMessage
			if args.Automate {
				data, err = client.AutomateScreenshot(gctx, page, target.Name, target.Options)
			} else {
				data, err = client.Snapshot(gctx, page, target.Name, target.Options)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", target.Name, err)
			}
			results[i] = result{opened: true, data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, target := range cfg.Targets {
		switch r := results[i]; {
		case !r.opened:
			fmt.Printf("%-24s failed to open\n", target.Name)
		case r.data == nil:
			fmt.Printf("%-24s not submitted\n", target.Name)
		default:
			fmt.Printf("%-24s %s\n", target.Name, r.data)
		}
	}
	return nil
}
