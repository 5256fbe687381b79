// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// logship sends logs from the command line through a full client:
// the same persistent backlog, batching, retry, and session tracking
// an embedding application gets. Logs that cannot be delivered before
// --wait expires stay in the database and go out on the next run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/logship/lib/client"
	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/config"
	"github.com/bureau-foundation/logship/lib/process"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	group       string
	wait        time.Duration
	logLevel    string
	showVersion bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("logship", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the config file (default: $LOGSHIP_CONFIG)")
	flagSet.StringVarP(&opts.group, "group", "g", "", "group to enqueue into (default: the session group, else the first configured group)")
	flagSet.DurationVar(&opts.wait, "wait", 10*time.Second, "how long to wait for delivery before exiting")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, stderr)
			return nil
		}
		return &process.ExitError{Code: 2, Err: err}
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "logship %s\n", version.Info())
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet, stderr)
		return &process.ExitError{Code: 2, Err: fmt.Errorf("a command is required")}
	}
	command, commandArgs := rest[0], rest[1:]

	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return &process.ExitError{Code: 2, Err: err}
	}
	var build func() ingest.Log
	switch command {
	case "event", "page":
		if len(commandArgs) == 0 {
			return &process.ExitError{Code: 2, Err: fmt.Errorf("%s requires a name", command)}
		}
		properties, err := parseProperties(commandArgs[1:])
		if err != nil {
			return &process.ExitError{Code: 2, Err: err}
		}
		name := commandArgs[0]
		build = func() ingest.Log {
			if command == "event" {
				return &ingest.EventLog{ID: uuid.New(), Name: name, Properties: properties}
			}
			return &ingest.PageLog{Name: name, Properties: properties}
		}
	case "enable", "disable":
		if len(commandArgs) > 1 {
			return &process.ExitError{Code: 2, Err: fmt.Errorf("%s takes at most one group name", command)}
		}
	case "flush", "status", "install-id":
		if len(commandArgs) != 0 {
			return &process.ExitError{Code: 2, Err: fmt.Errorf("%s takes no arguments", command)}
		}
	default:
		return &process.ExitError{Code: 2, Err: fmt.Errorf("unknown command %q", command)}
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.group == "" {
		opts.group = defaultGroup(cfg)
	}

	c, err := client.New(ctx, cfg, client.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			logger.Error("closing client", "error", err)
		}
	}()

	switch command {
	case "install-id":
		fmt.Fprintln(stdout, c.InstallID())
		return nil
	case "enable", "disable":
		if len(commandArgs) == 1 {
			return c.SetGroupEnabled(ctx, commandArgs[0], command == "enable")
		}
		return c.SetEnabled(ctx, command == "enable")
	case "status":
		return printStatus(ctx, c, stdout)
	case "event", "page":
		if !c.IsEnabled() {
			return fmt.Errorf("logship is disabled; run \"logship enable\" first")
		}
		if tracker := c.Tracker(); tracker != nil {
			tracker.Resumed()
		}
		c.Enqueue(build(), opts.group)
	}

	if err := waitForDelivery(ctx, c, opts.wait, clock.Real()); err != nil {
		logger.Warn("logs not delivered yet, they stay stored for the next run", "error", err)
	}
	return printStatus(ctx, c, stdout)
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `logship sends telemetry logs through the delivery pipeline.

Usage:
  logship [flags] <command> [args]

Commands:
  event <name> [key=value...]   enqueue a custom event
  page <name> [key=value...]    enqueue a page view
  flush                         send stored logs left by earlier runs
  status                        print stored and in-flight logs per group
  enable | disable [group]      persist the enabled flag, globally or for one
                                group (disable deletes stored logs)
  install-id                    print the installation identifier

Examples:
  # Send an event using the config named by LOGSHIP_CONFIG
  logship event checkout plan=pro seats=3

  # Try again later to deliver whatever is still stored
  logship --config ./logship.yaml flush

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parsed})), nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func defaultGroup(cfg *config.Config) string {
	if cfg.Session.Group != "" {
		return cfg.Session.Group
	}
	if len(cfg.Groups) > 0 {
		return cfg.Groups[0].Name
	}
	return ""
}

// parseProperties turns key=value arguments into a property map.
func parseProperties(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	properties := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q is not key=value", arg)
		}
		if _, duplicate := properties[key]; duplicate {
			return nil, fmt.Errorf("property %q given twice", key)
		}
		properties[key] = value
	}
	return properties, nil
}

// waitForDelivery polls until no group has pending or in-flight logs.
func waitForDelivery(ctx context.Context, c *client.Client, wait time.Duration, clk clock.Clock) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := clk.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		statuses, err := c.Channel().Status(ctx)
		if err != nil {
			return err
		}
		idle := true
		for _, status := range statuses {
			if status.Pending > 0 || status.InFlight > 0 {
				idle = false
			}
		}
		if idle {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printStatus(ctx context.Context, c *client.Client, w io.Writer) error {
	statuses, err := c.Channel().Status(ctx)
	if err != nil {
		return err
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	state := "enabled"
	if !c.IsEnabled() {
		state = "disabled"
	}
	fmt.Fprintf(w, "logship %s, install %s\n", state, c.InstallID())
	for _, status := range statuses {
		paused := ""
		if status.Paused {
			paused = " (paused)"
		}
		fmt.Fprintf(w, "  %-16s pending %d, in flight %d%s\n", status.Name, status.Pending, status.InFlight, paused)
	}
	return nil
}
