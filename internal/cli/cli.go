// Package cli provides the command-line interface for wikisync.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/wikisync/internal/config"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return newApp().Run(ctx, args)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "wikisync",
		Usage:   "Edit wiki pages as local files and save them back",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file (YAML or TOML)",
				Sources: cli.EnvVars("WIKISYNC_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			configureColors(cmd, cfg)
			if err := configureLogging(cmd, cfg); err != nil {
				return ctx, err
			}
			return withConfig(ctx, cfg), nil
		},
		Commands: []*cli.Command{
			versionCommand(),
			configCommand(),
			loginCommand(),
			treeCommand(),
			newCommand(),
			editCommand(),
			showCommand(),
			browseCommand(),
			attachCommand(),
			attachmentsCommand(),
			downloadCommand(),
			mcpCommand(),
		},
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFrom returns the configuration loaded by the root command. Commands
// run on their own load it again, falling back to the defaults.
func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	if cfg, err := config.Load(); err == nil {
		return cfg
	}
	return config.Default()
}

// configureColors sets up color output based on CLI flags and configuration.
func configureColors(cmd *cli.Command, cfg *config.Config) {
	if cmd.Bool("no-color") {
		ui.DisableColors()
		return
	}
	ui.ApplyColorMode(cfg.Output.Color, os.Stdout)
}

// configureLogging sets up the logging level based on CLI flags.
func configureLogging(cmd *cli.Command, cfg *config.Config) error {
	opts := logging.DefaultOptions()

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") || cfg.Output.Verbose {
		opts.Level = slog.LevelInfo
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}
