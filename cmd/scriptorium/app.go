package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/scriptorium/config"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/metrics"
	"github.com/urfave/cli/v2"
)

const (
	metaConfig  = "config"
	metaMetrics = "metrics"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "scriptorium",
		Usage: "Deduplicate, embed and import classical text passages into a vector store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from these files (default .env)",
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "Write run metrics to this file for the node_exporter textfile collector",
			},
		},
		Before: setup,
		After:  writeMetrics,
		Commands: []*cli.Command{
			checkCommand(),
			dedupeCommand(),
			embedCommand(),
			importCommand(),
			purgeCommand(),
			verifyCommand(),
			reembedCommand(),
			searchCommand(),
		},
	}
}

// setup loads the environment and config, then installs the logger.
func setup(c *cli.Context) error {
	if err := config.LoadEnv(c.StringSlice("env-file")...); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := setupLogger(c.App.ErrWriter, cfg.LogLevel); err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaMetrics] = metrics.New()
	return nil
}

func writeMetrics(c *cli.Context) error {
	path := c.String("metrics-textfile")
	if path == "" {
		return nil
	}
	return appMetrics(c).WriteTextfile(path)
}

func appConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func appMetrics(c *cli.Context) *metrics.Metrics {
	m, _ := c.App.Metadata[metaMetrics].(*metrics.Metrics)
	return m
}

func setupLogger(w io.Writer, levelStr string) error {
	if w == nil {
		w = os.Stderr
	}
	levelStr = strings.ToLower(levelStr)

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// confirm asks a y/n question on in and reports whether the answer was yes.
// Anything other than y or yes, including end of input, is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/n): ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// resolveMode maps --dry-run, --yes and the interactive answer to a Mode.
func resolveMode(c *cli.Context, question string) core.Mode {
	switch {
	case c.Bool("dry-run"):
		return core.DryRun
	case c.Bool("yes"):
		return core.Execute
	case confirm(c.App.Reader, c.App.Writer, question):
		return core.Execute
	default:
		fmt.Fprintln(c.App.Writer, "Not confirmed; running as dry run.")
		return core.DryRun
	}
}

var modeFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "dry-run",
		Usage: "Report what would change without writing",
	},
	&cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	},
}

var inputFlag = &cli.StringFlag{
	Name:     "input",
	Aliases:  []string{"i"},
	Usage:    "Staging file to read",
	Required: true,
}

var outputFlag = &cli.StringFlag{
	Name:     "output",
	Aliases:  []string{"o"},
	Usage:    "Staging file to write",
	Required: true,
}
