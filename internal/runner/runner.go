package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mickyco94/rerun/internal/config"
	"github.com/mickyco94/rerun/internal/executor"
	"github.com/mickyco94/rerun/internal/ignore"
	"github.com/mickyco94/rerun/internal/watcher"
	"github.com/sirupsen/logrus"
)

// Runner owns the long lived resources the loop draws on
type Runner struct {
	logger logrus.FieldLogger
	cfg    *config.Config

	file       *watcher.File
	cron       *watcher.Cron
	matcher    *ignore.Matcher
	supervisor *executor.Supervisor
	interrupt  chan os.Signal
}

func new(logger logrus.FieldLogger, cfg *config.Config) (*Runner, error) {
	opts := make([]executor.Option, 0)
	if cfg.NoGroup {
		opts = append(opts, executor.WithTerminator(executor.NewDirectTerminator()))
	}

	supervisor, err := executor.NewSupervisor(logger, cfg.Signal, opts...)
	if err != nil {
		return nil, err
	}

	file, err := watcher.NewFile(logger, watcher.Options{Poll: cfg.Poll})
	if err != nil {
		return nil, err
	}

	runner := &Runner{
		logger:     logger,
		cfg:        cfg,
		file:       file,
		supervisor: supervisor,
	}

	if cfg.Schedule != "" {
		runner.cron = watcher.NewCron(logger)
		if err := runner.cron.Schedule(cfg.Schedule); err != nil {
			_ = file.Stop(context.Background())
			return nil, err
		}
	}

	return runner, nil
}

// Run watches cfg.Targets and reruns cfg.Command until interrupted. It
// returns nil on a graceful shutdown.
func Run(logger logrus.FieldLogger, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	runner, err := new(logger, cfg)
	if err != nil {
		return err
	}
	defer runner.shutdown()

	if err := runner.setup(); err != nil {
		return err
	}

	var schedule <-chan struct{}
	if runner.cron != nil {
		schedule = runner.cron.Ticks()
	}

	loop := NewLoop(
		logger,
		cfg,
		runner.file,
		runner.matcher,
		runner.supervisor,
		runner.interrupt,
		schedule,
	)

	return loop.Run()
}

// setup registers every target, loads the ignore files and starts the
// event sources
func (runner *Runner) setup() error {
	for _, path := range runner.cfg.Targets {
		target := watcher.Target{
			Path:      path,
			Recursive: runner.cfg.Recursive,
		}
		// the error already names the path
		if err := runner.file.Add(target); err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("Failed to resolve working directory: %w", err)
	}

	runner.matcher, err = ignore.New(cwd)
	if err != nil {
		return fmt.Errorf("Failed to load ignore files: %w", err)
	}
	runner.logger.
		WithField("patterns", runner.matcher.Len()).
		Debug("Loaded ignore files")

	runner.interrupt = make(chan os.Signal, 1)
	signal.Notify(runner.interrupt, os.Interrupt, syscall.SIGTERM)

	if err := runner.file.Run(); err != nil {
		return fmt.Errorf("Failed to start file watcher: %w", err)
	}

	if runner.cron != nil {
		runner.cron.Start()
	}

	return nil
}

var shutdownDelay = time.Second * 5

// shutdown releases the event sources. A utility still running is left
// alone, it was either terminated by the loop or is meant to outlive it.
func (runner *Runner) shutdown() {
	if runner.interrupt != nil {
		signal.Stop(runner.interrupt)
	}

	wg := &sync.WaitGroup{}
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownDelay)
	defer done()

	wg.Add(1)
	go func() {
		defer wg.Done()

		err := runner.file.Stop(shutdownCtx)
		if err != nil {
			runner.logger.WithError(err).Error("File watcher failed to shutdown")
		}
	}()

	if runner.cron != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := runner.cron.Stop(shutdownCtx)
			if err != nil {
				runner.logger.WithError(err).Error("Cron failed to shutdown")
			}
		}()
	}

	wg.Wait()
}
