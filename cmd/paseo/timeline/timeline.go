// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/paseo-dev/paseo/client"
	"github.com/paseo-dev/paseo/cmd/paseo/cli"
	"github.com/paseo-dev/paseo/lib/config"
	timelinelib "github.com/paseo-dev/paseo/lib/timeline"
)

// connectionOptions are the flags shared by show and watch.
type connectionOptions struct {
	ConfigPath string
	RelayURL   string
	ServerID   string
	AgentID    string
	ClientID   string
	Limit      int
	Canonical  bool
	Timeout    time.Duration
}

func (options *connectionOptions) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&options.ConfigPath, "config", "", "config file supplying daemon.relay_url and daemon.server_id (default: $"+config.EnvVar+")")
	flagSet.StringVar(&options.RelayURL, "relay", "", "relay WebSocket URL (default: daemon.relay_url)")
	flagSet.StringVar(&options.ServerID, "server", "", "daemon server ID (default: daemon.server_id)")
	flagSet.StringVar(&options.AgentID, "agent", "", "agent ID (required)")
	flagSet.StringVar(&options.ClientID, "client-id", "", "client ID on the relay (default: random)")
	flagSet.IntVar(&options.Limit, "limit", 50, "entries to fetch; counts projected entries unless --canonical")
	flagSet.BoolVar(&options.Canonical, "canonical", false, "show canonical rows instead of the projection")
	flagSet.DurationVar(&options.Timeout, "timeout", 10*time.Second, "how long to wait for the first response")
}

func (options *connectionOptions) mode() timelinelib.Mode {
	if options.Canonical {
		return timelinelib.ModeCanonical
	}
	return timelinelib.ModeProjected
}

// resolve fills RelayURL and ServerID from the config file when the
// flags leave them empty.
func (options *connectionOptions) resolve() error {
	if options.AgentID == "" {
		return errors.New("--agent is required")
	}
	if options.Limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", options.Limit)
	}

	defaults := config.Default()
	path := options.ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvVar)
	}
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		defaults = loaded
	}
	if options.RelayURL == "" {
		options.RelayURL = defaults.Daemon.RelayURL
	}
	if options.ServerID == "" {
		options.ServerID = defaults.Daemon.ServerID
	}
	if options.ServerID == "" {
		return errors.New("--server is required (or set daemon.server_id in the config file)")
	}
	return nil
}

// attachment is a bootstrapped timeline on a live client connection.
type attachment struct {
	client   *client.Client
	timeline *client.Timeline
	closed   chan error
}

// attach dials the relay, starts the receive loop, and bootstraps the
// agent's timeline.
func attach(ctx context.Context, options *connectionOptions, logger *slog.Logger) (*attachment, error) {
	if err := options.resolve(); err != nil {
		return nil, err
	}

	dialContext, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	connection, err := client.Dial(dialContext, client.Config{
		RelayURL:  options.RelayURL,
		ServerID:  options.ServerID,
		ClientID:  options.ClientID,
		Projected: !options.Canonical,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", options.RelayURL, err)
	}
	closed := make(chan error, 1)
	go func() { closed <- connection.Run() }()

	controller := connection.Timeline(options.AgentID)
	if err := controller.Bootstrap(dialContext, options.Limit); err != nil {
		connection.Close()
		<-closed
		return nil, fmt.Errorf("loading timeline for %s on %s: %w", options.AgentID, options.ServerID, err)
	}
	logger.Debug("timeline bootstrapped", "agent_id", options.AgentID, "rows", len(controller.Rows()))
	return &attachment{client: connection, timeline: controller, closed: closed}, nil
}

func (a *attachment) close() {
	a.client.Close()
	<-a.closed
}

// Command returns the "timeline" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "timeline",
		Summary: "Inspect an agent's timeline through a relay",
		Description: `Attach to a relay session as a client and read one agent's timeline.

The projection collapses tool call lifecycles into a single entry and
merges streamed assistant chunks. Use --canonical to see the raw rows.`,
		Subcommands: []*cli.Command{
			showCommand(os.Stdout),
			watchCommand(),
		},
	}
}

func showCommand(stdout io.Writer) *cli.Command {
	var options connectionOptions
	var jsonOutput bool
	var color string

	return &cli.Command{
		Name:    "show",
		Summary: "Print the newest entries of an agent's timeline",
		Usage:   "paseo timeline show --agent ID [--server ID] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.BoolVar(&jsonOutput, "json", false, "write one JSON object per entry")
			flagSet.StringVar(&color, "color", "auto", "colorize output: auto, always, or never")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Last 20 projected entries",
				Command:     "paseo timeline show --server laptop --agent a1 --limit 20",
			},
			{
				Description: "Raw rows as JSON lines",
				Command:     "paseo timeline show --server laptop --agent a1 --canonical --json",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			renderer := lipgloss.NewRenderer(stdout)
			if err := setColor(renderer, color); err != nil {
				return err
			}
			return runShow(ctx, &options, jsonOutput, stdout, newEntryRenderer(renderer, defaultTheme), logger)
		},
	}
}

// setColor applies a --color value. "auto" keeps the profile the
// renderer detected from its output.
func setColor(renderer *lipgloss.Renderer, color string) error {
	switch color {
	case "auto":
	case "always":
		renderer.SetColorProfile(termenv.ANSI256)
	case "never":
		renderer.SetColorProfile(termenv.Ascii)
	default:
		return fmt.Errorf("--color must be auto, always, or never, got %q", color)
	}
	return nil
}

func runShow(ctx context.Context, options *connectionOptions, jsonOutput bool, stdout io.Writer, renderer *entryRenderer, logger *slog.Logger) error {
	session, err := attach(ctx, options, logger)
	if err != nil {
		return err
	}
	defer session.close()

	entries := session.timeline.Project(options.mode())
	if jsonOutput {
		return writeJSONLines(stdout, entries)
	}
	_, err = fmt.Fprintln(stdout, renderer.Entries(entries))
	return err
}

func watchCommand() *cli.Command {
	var options connectionOptions

	return &cli.Command{
		Name:    "watch",
		Summary: "Follow an agent's timeline live",
		Usage:   "paseo timeline watch --agent ID [--server ID] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			options.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			if !cli.IsTerminal(os.Stdout) {
				return errors.New("watch needs a terminal; use 'paseo timeline show --json' for pipes")
			}
			// Log records would tear the full-screen view.
			logger = slog.New(slog.DiscardHandler)

			session, err := attach(ctx, &options, logger)
			if err != nil {
				return err
			}
			defer session.client.Close()

			model := newWatchModel(options.AgentID, session.timeline, session.closed,
				newEntryRenderer(lipgloss.DefaultRenderer(), defaultTheme), options.mode(), options.Limit)
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			final, err := program.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("running timeline view: %w", err)
			}
			if watched, ok := final.(watchModel); ok && watched.err != nil {
				return fmt.Errorf("relay connection ended: %w", watched.err)
			}
			return nil
		},
	}
}
