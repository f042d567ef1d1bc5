// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/paseo-dev/paseo/cmd/paseo/cli"
	"github.com/paseo-dev/paseo/lib/config"
	"github.com/paseo-dev/paseo/lib/version"
	"github.com/paseo-dev/paseo/lib/wsconn"
	"github.com/paseo-dev/paseo/relay"
)

// shutdownTimeout bounds how long sockets get to close on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	ConfigPath  string
	Listen      string
	Adapter     string
	LogLevel    string
	ShowVersion bool
}

func parseFlags(args []string) (options, error) {
	var parsed options
	flagSet := pflag.NewFlagSet("paseo-relay", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.ConfigPath, "config", "", "config file (default: $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&parsed.Listen, "listen", "", "TCP listen address (overrides relay.listen)")
	flagSet.StringVar(&parsed.Adapter, "adapter", "", "session table adapter: memory or hibernating (overrides relay.adapter)")
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
		version.Print(os.Stdout, "paseo-relay")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(parsed.LogLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := cli.NewLogger(os.Stderr, level)

	relayConfig, err := loadConfig(parsed)
	if err != nil {
		return err
	}
	server, err := newServer(relayConfig, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", relayConfig.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", relayConfig.Listen, err)
	}
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() { served <- httpServer.Serve(listener) }()

	logger.Info("relay listening",
		"listen", listener.Addr().String(),
		"path", relayConfig.Path,
		"adapter", relayConfig.Adapter,
		"version", version.Short(),
	)

	select {
	case err := <-served:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Sockets are hijacked connections, which http.Server.Shutdown does
	// not track; close them first.
	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Warn("sockets still open at shutdown", "error", err)
	}
	if err := httpServer.Shutdown(shutdownContext); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// loadConfig reads the relay section and applies flag overrides.
func loadConfig(parsed options) (config.RelayConfig, error) {
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
		return config.RelayConfig{}, err
	}

	if parsed.Listen != "" {
		cfg.Relay.Listen = parsed.Listen
	}
	if parsed.Adapter != "" {
		cfg.Relay.Adapter = parsed.Adapter
		if err := cfg.Validate(); err != nil {
			return config.RelayConfig{}, err
		}
	}
	return cfg.Relay, nil
}

// newServer builds the relay server for cfg. The hibernating adapter
// keeps pending frames in the durable queue under PendingDir.
func newServer(cfg config.RelayConfig, logger *slog.Logger) (*relay.Server, error) {
	serverConfig := relay.ServerConfig{
		Path:       cfg.Path,
		SyncDelay:  cfg.SyncDelay,
		CloseDelay: cfg.CloseDelay,
		Pending:    relay.NewMemoryPending(cfg.PendingLimit),
		Conn: wsconn.Config{
			PingPeriod:    cfg.PingPeriod,
			WriteTimeout:  cfg.WriteTimeout,
			MaxFrameBytes: cfg.MaxFrameBytes,
		},
		Logger: logger,
	}

	if cfg.Adapter == config.AdapterHibernating {
		compression, err := relay.ParseCompression(cfg.PendingCompression)
		if err != nil {
			return nil, err
		}
		kv, err := relay.NewDirKV(cfg.PendingDir)
		if err != nil {
			return nil, err
		}
		serverConfig.Hibernating = true
		serverConfig.Pending = relay.NewDurablePending(kv, cfg.PendingLimit, compression)
		logger.Info("durable pending queue",
			"dir", cfg.PendingDir,
			"compression", compression.String(),
		)
	}
	return relay.NewServer(serverConfig), nil
}
