package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoTargets        = errors.New("No files or dirs to watch")
	ErrNoCommand        = errors.New("No utility to run")
	ErrNoSignal         = errors.New("No kill signal specified")
	ErrNegativeDuration = errors.New("Duration must not be negative")
)

const (
	// DefaultDelay separates consecutive runs
	DefaultDelay  = 100 * time.Millisecond
	DefaultSignal = "SIGTERM"
)

// Config is the complete set of options the watch loop runs with. It is
// assembled once at startup from flags and the optional config file, and is
// not modified afterwards.
type Config struct {
	// ClearTerm clears the screen before each run
	ClearTerm bool
	// Postpone skips the run at startup, the first run waits for a change
	Postpone bool
	// Recursive watches directories and everything below them
	Recursive bool
	// UseShell evaluates the utility with the user's shell
	UseShell bool
	// ExitAfterFirstRun stops after the utility has been started once
	ExitAfterFirstRun bool
	// NoGroup signals the utility only, rather than its process group
	NoGroup bool

	// IdleTimeout reruns the utility when nothing happened for this long.
	// Nil disables it.
	IdleTimeout *time.Duration
	// Delay is waited before every run but the first
	Delay time.Duration
	// Poll switches to polling the targets at this interval when non-zero
	Poll time.Duration

	// Signal is the name of the signal that stops a running utility
	Signal string
	// Schedule optionally reruns the utility on a cron schedule
	Schedule string

	// Command is the utility and its arguments, shell wrapping included
	Command []string
	// Targets are the files and directories to watch
	Targets []string
}

// Default returns a Config with every optional field at its default
func Default() *Config {
	return &Config{
		Delay:  DefaultDelay,
		Signal: DefaultSignal,
	}
}

// Timeout returns the idle timeout and whether one is configured
func (cfg *Config) Timeout() (time.Duration, bool) {
	if cfg.IdleTimeout == nil {
		return 0, false
	}
	return *cfg.IdleTimeout, true
}

// Validate checks the configuration is complete. The signal name is only
// checked for presence, it is resolved by the process supervisor.
func (cfg *Config) Validate() error {
	if len(cfg.Targets) == 0 {
		return ErrNoTargets
	}
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return ErrNoCommand
	}
	if cfg.Signal == "" {
		return ErrNoSignal
	}
	if cfg.Delay < 0 {
		return fmt.Errorf("delay %v: %w", cfg.Delay, ErrNegativeDuration)
	}
	if cfg.Poll < 0 {
		return fmt.Errorf("poll interval %v: %w", cfg.Poll, ErrNegativeDuration)
	}
	if timeout, ok := cfg.Timeout(); ok && timeout <= 0 {
		return fmt.Errorf("idle timeout %v: %w", timeout, ErrNegativeDuration)
	}
	return nil
}
