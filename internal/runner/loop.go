package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mickyco94/rerun/internal/config"
	"github.com/mickyco94/rerun/internal/executor"
	"github.com/mickyco94/rerun/internal/watcher"
	"github.com/sirupsen/logrus"
)

// ErrWatcherClosed means file notifications stopped arriving, the loop
// cannot continue without them
var ErrWatcherClosed = errors.New("File watcher stopped unexpectedly")

// Watcher is the source of debounced filesystem changes
type Watcher interface {
	Batches() <-chan watcher.Batch
}

// Matcher decides whether a changed path is ignored
type Matcher interface {
	IsIgnored(path string, isDir bool) bool
}

// Supervisor runs at most one utility at a time
type Supervisor interface {
	Spawn(command []string) (*executor.Process, error)
	Terminate() error
}

// state is only touched by the goroutine running the loop
type state struct {
	// ran is set once the first run has happened, the delay only applies
	// after it
	ran bool
	// exit ends the loop after the current iteration
	exit bool
	runs int
}

// Loop decides when the utility is rerun. It waits on file changes, the
// optional idle timeout and schedule, and the interrupt signal, and reacts
// to whichever is ready first.
type Loop struct {
	logger logrus.FieldLogger
	cfg    *config.Config

	watcher    Watcher
	matcher    Matcher
	supervisor Supervisor

	interrupt <-chan os.Signal
	// schedule is nil when no schedule is configured
	schedule <-chan struct{}

	clear func() error
	sleep func(time.Duration)

	state state
}

// NewLoop wires the loop to its sources. schedule may be nil.
func NewLoop(
	logger logrus.FieldLogger,
	cfg *config.Config,
	files Watcher,
	matcher Matcher,
	supervisor Supervisor,
	interrupt <-chan os.Signal,
	schedule <-chan struct{},
) *Loop {
	return &Loop{
		logger:     logger,
		cfg:        cfg,
		watcher:    files,
		matcher:    matcher,
		supervisor: supervisor,
		interrupt:  interrupt,
		schedule:   schedule,
		clear: func() error {
			return executor.ClearTerminal(os.Stdout)
		},
		sleep: time.Sleep,
	}
}

// Runs is the number of reruns performed so far
func (l *Loop) Runs() int {
	return l.state.runs
}

// Run blocks until the loop is interrupted, or until the first run when
// ExitAfterFirstRun is set. It only returns an error when the loop can not
// continue.
func (l *Loop) Run() error {
	if !l.cfg.Postpone {
		l.rerun(l.logger.WithField("trigger", "startup"))
		if l.cfg.ExitAfterFirstRun {
			return nil
		}
	}

	for !l.state.exit {
		if err := l.wait(); err != nil {
			return err
		}
	}
	return nil
}

// wait blocks on every source once and handles the first one ready
func (l *Loop) wait() error {
	// A nil channel never fires, leaving the timeout out of the select
	var idle <-chan time.Time
	if timeout, ok := l.cfg.Timeout(); ok {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case batch, open := <-l.watcher.Batches():
		if !open {
			return ErrWatcherClosed
		}
		if batch.Err != nil {
			l.logger.WithError(batch.Err).Warn("Error watching files")
			return nil
		}

		path, ok := l.firstRelevant(batch)
		if !ok {
			l.logger.WithField("changes", len(batch.Changes)).Debug("Only ignored paths changed")
			return nil
		}
		l.rerun(l.logger.WithField("trigger", "change").WithField("path", path))

	case <-idle:
		l.rerun(l.logger.WithField("trigger", "timeout"))

	case <-l.schedule:
		l.rerun(l.logger.WithField("trigger", "schedule"))

	case sig := <-l.interrupt:
		l.logger.WithField("signal", sig.String()).Debug("Received interrupt, shutting down")
		l.state.exit = true
		if err := l.supervisor.Terminate(); err != nil {
			return fmt.Errorf("stop utility on shutdown: %w", err)
		}
		return nil
	}

	if l.cfg.ExitAfterFirstRun {
		l.state.exit = true
	}
	return nil
}

// firstRelevant returns the first change that is not ignored
func (l *Loop) firstRelevant(batch watcher.Batch) (string, bool) {
	for _, change := range batch.Changes {
		if !l.matcher.IsIgnored(change.Path, change.IsDir) {
			return change.Path, true
		}
	}
	return "", false
}

// rerun replaces the running utility with a fresh one. Failures are
// reported and the loop carries on, a later change may well fix them.
func (l *Loop) rerun(logger logrus.FieldLogger) {
	if err := l.supervisor.Terminate(); err != nil {
		// Spawning now would leave two utilities running
		logger.WithError(err).Error("Failed to stop the previous run")
		return
	}

	if l.cfg.ClearTerm {
		if err := l.clear(); err != nil {
			logger.WithError(err).Warn("Failed to clear terminal screen")
		}
	}

	if l.state.ran && l.cfg.Delay > 0 {
		l.sleep(l.cfg.Delay)
	}

	logger.Debug("Running utility")

	if _, err := l.supervisor.Spawn(l.cfg.Command); err != nil {
		logger.
			WithField("program", l.cfg.Command[0]).
			WithError(err).
			Error("Failed to run the provided utility")
	}

	l.state.ran = true
	l.state.runs++
}
