// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/paseo-dev/paseo/cmd/paseo/cli"
	"github.com/paseo-dev/paseo/daemon"
	"github.com/paseo-dev/paseo/lib/config"
	"github.com/paseo-dev/paseo/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	ConfigPath  string
	RelayURL    string
	ServerID    string
	EventsFile  string
	LogLevel    string
	ShowVersion bool
}

func parseFlags(args []string) (options, error) {
	var parsed options
	flagSet := pflag.NewFlagSet("paseo-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.ConfigPath, "config", "", "config file (default: $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&parsed.RelayURL, "relay", "", "relay WebSocket URL (overrides daemon.relay_url)")
	flagSet.StringVar(&parsed.ServerID, "server-id", "", "session name on the relay (overrides daemon.server_id)")
	flagSet.StringVar(&parsed.EventsFile, "events", "", "JSONL agent event file (overrides daemon.events_file)")
	flagSet.StringVar(&parsed.LogLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flagSet.BoolVar(&parsed.ShowVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if flagSet.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return parsed, nil
}

func run() error {
	parsed, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if parsed.ShowVersion {
		version.Print(os.Stdout, "paseo-daemon")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(parsed.LogLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := cli.NewLogger(os.Stderr, level)

	daemonConfig, err := loadConfig(parsed)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("daemon starting",
		"server_id", daemonConfig.ServerID,
		"relay", daemonConfig.RelayURL,
		"events", daemonConfig.EventsFile,
		"version", version.Short(),
	)
	return serve(ctx, daemonConfig, logger)
}

// loadConfig reads the daemon section and applies flag overrides.
func loadConfig(parsed options) (config.DaemonConfig, error) {
	path := parsed.ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvVar)
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Parse(nil, ".yaml")
	}
	if err != nil {
		return config.DaemonConfig{}, err
	}

	if parsed.RelayURL != "" {
		cfg.Daemon.RelayURL = parsed.RelayURL
	}
	if parsed.ServerID != "" {
		cfg.Daemon.ServerID = parsed.ServerID
	}
	if parsed.EventsFile != "" {
		cfg.Daemon.EventsFile = parsed.EventsFile
	}
	if cfg.Daemon.ServerID == "" {
		return config.DaemonConfig{}, errors.New("daemon.server_id is required (set it in the config file or pass --server-id)")
	}
	return cfg.Daemon, nil
}

// serve runs the tailer and the relay link until ctx is done or either
// fails. Both are stopped before serve returns.
func serve(ctx context.Context, cfg config.DaemonConfig, logger *slog.Logger) error {
	history := daemon.NewLog(daemon.LogConfig{DefaultLimit: cfg.DefaultLimit})

	if err := os.MkdirAll(filepath.Dir(cfg.EventsFile), 0o700); err != nil {
		return fmt.Errorf("creating events directory: %w", err)
	}

	tailer, err := daemon.NewTailer(daemon.TailerConfig{
		Path:   cfg.EventsFile,
		Log:    history,
		Logger: logger.With("component", "tailer"),
	})
	if err != nil {
		return err
	}
	link, err := daemon.NewLink(daemon.LinkConfig{
		RelayURL:   cfg.RelayURL,
		ServerID:   cfg.ServerID,
		Log:        history,
		Reconnect:  cfg.Reconnect,
		PingPeriod: cfg.PingPeriod,
		Logger:     logger.With("component", "link"),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	errs := make(chan error, 2)
	for name, component := range map[string]func(context.Context) error{
		"tailer": tailer.Run,
		"link":   link.Run,
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := component(ctx); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	workers.Wait()
	close(errs)

	var failures []error
	for err := range errs {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}
