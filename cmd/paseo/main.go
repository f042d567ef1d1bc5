// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paseo-dev/paseo/cmd/paseo/cli"
	timelinecmd "github.com/paseo-dev/paseo/cmd/paseo/timeline"
	"github.com/paseo-dev/paseo/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCommand().Execute(ctx, os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "paseo",
		Description: `Paseo: remote access to coding agents through a relay.

Read agent timelines from a daemon attached to a relay session.`,
		Subcommands: []*cli.Command{
			timelinecmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string, *slog.Logger) error {
					version.Print(os.Stdout, "paseo")
					return nil
				},
			},
		},
	}
}
