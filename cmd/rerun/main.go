package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mickyco94/rerun/internal/config"
	"github.com/mickyco94/rerun/internal/executor"
	"github.com/mickyco94/rerun/internal/runner"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp(os.Stdin).Run(os.Args)
	if err != nil {
		// Failures inside the action exit through cli.Exit, only usage
		// errors end up here
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdin io.Reader) *cli.App {
	return &cli.App{
		Name:                   "rerun",
		Usage:                  "run a utility whenever files change",
		UsageText:              "rerun [options] utility [argument ...]",
		HideHelpCommand:        true,
		UseShortOptionHandling: true,
		Flags:                  flags(),
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c)
			if err != nil {
				return cli.Exit(err, 1)
			}

			cfg, err := configure(c, logger, stdin)
			if err != nil {
				return cli.Exit(err, 1)
			}

			if err := runner.Run(logger, cfg); err != nil {
				return cli.Exit(err, 1)
			}
			return nil
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "clear", Aliases: []string{"c"}, Usage: "clear the screen before each run"},
		&cli.BoolFlag{Name: "postpone", Aliases: []string{"p"}, Usage: "wait for the first change before running"},
		&cli.BoolFlag{Name: "recursive", Aliases: []string{"R"}, Usage: "watch directories recursively"},
		&cli.BoolFlag{Name: "shell", Aliases: []string{"s"}, Usage: "evaluate the utility with $SHELL"},
		&cli.BoolFlag{Name: "exit", Aliases: []string{"z"}, Usage: "exit after the first run"},
		&cli.IntFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "rerun after `SECONDS` without changes"},
		&cli.IntFlag{Name: "delay", Aliases: []string{"d"}, Value: int(config.DefaultDelay / time.Millisecond), Usage: "wait `MS` before each rerun"},
		&cli.StringFlag{Name: "signal", Aliases: []string{"k"}, Value: config.DefaultSignal, Usage: "`SIGNAL` that stops a running utility"},
		&cli.StringSliceFlag{Name: "path", Usage: "`PATH` to watch, read from standard input when absent"},
		&cli.DurationFlag{Name: "poll", Usage: "poll for changes every `INTERVAL` instead of using OS notifications"},
		&cli.StringFlag{Name: "schedule", Usage: "also rerun on the cron `SPEC`"},
		&cli.BoolFlag{Name: "no-group", Usage: "signal the utility only, not its process group"},
		&cli.PathFlag{Name: "config", Usage: "read options from the YAML `FILE`"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log `LEVEL`"},
		&cli.StringFlag{Name: "log-format", Value: "text", Usage: "log `FORMAT`, text or json"},
	}
}

func newLogger(c *cli.Context) (logrus.FieldLogger, error) {
	logger := logrus.New()
	logger.SetOutput(c.App.ErrWriter)

	switch format := c.String("log-format"); format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	return logger.WithField("app", "rerun"), nil
}

// configure layers defaults, the config file and explicitly set flags, in
// that order
func configure(c *cli.Context, logger logrus.FieldLogger, stdin io.Reader) (*config.Config, error) {
	cfg := config.Default()

	if path := c.Path("config"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
		defer file.Close()

		raw := &config.Raw{}
		if err := raw.Parse(file); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := raw.Apply(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	setBool(c, "clear", &cfg.ClearTerm)
	setBool(c, "postpone", &cfg.Postpone)
	setBool(c, "recursive", &cfg.Recursive)
	setBool(c, "shell", &cfg.UseShell)
	setBool(c, "exit", &cfg.ExitAfterFirstRun)
	setBool(c, "no-group", &cfg.NoGroup)

	if c.IsSet("timeout") {
		if seconds := c.Int("timeout"); seconds == 0 {
			cfg.IdleTimeout = nil
		} else {
			timeout := time.Duration(seconds) * time.Second
			cfg.IdleTimeout = &timeout
		}
	}
	if c.IsSet("delay") {
		cfg.Delay = time.Duration(c.Int("delay")) * time.Millisecond
	}
	if c.IsSet("poll") {
		cfg.Poll = c.Duration("poll")
	}
	if c.IsSet("signal") {
		cfg.Signal = c.String("signal")
	}
	if c.IsSet("schedule") {
		cfg.Schedule = c.String("schedule")
	}

	if c.Args().Present() {
		cfg.Command = c.Args().Slice()
	}
	if cfg.UseShell && len(cfg.Command) > 0 {
		cfg.Command = executor.NewShell().Wrap(cfg.Command)
	}

	if paths := c.StringSlice("path"); len(paths) > 0 {
		cfg.Targets = paths
	}
	if len(cfg.Targets) == 0 {
		if file, ok := stdin.(*os.File); ok && isTerminal(file) {
			logger.Info("Reading paths to watch from standard input, one per line, end with Ctrl-D")
		}

		targets, err := config.ReadTargets(stdin)
		if err != nil {
			return nil, err
		}
		cfg.Targets = targets
	}

	return cfg, nil
}

func setBool(c *cli.Context, name string, dst *bool) {
	if c.IsSet(name) {
		*dst = c.Bool(name)
	}
}

func isTerminal(file *os.File) bool {
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
