package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyRunning is returned by Spawn while a previous utility is still current.
	// The caller must Terminate it first.
	ErrAlreadyRunning = errors.New("utility is already running")
	ErrNoCommand      = errors.New("no utility specified")
	ErrInvalidSignal  = errors.New("invalid kill signal")
)

// Terminator stops a spawned utility, blocks until it has exited and reaps
// it. Implementations must treat a process that is already gone as
// terminated, and must not signal anything for a process that was reaped
// beforehand: its ids may belong to someone else by then.
type Terminator interface {
	Terminate(proc *Process, sig os.Signal) error
}

// Supervisor owns at most one running utility. It is not safe for
// concurrent use, a single controller is expected to drive it.
type Supervisor struct {
	logger     logrus.FieldLogger
	terminator Terminator
	signal     os.Signal

	stdout io.Writer
	stderr io.Writer

	current *Process
}

// Option customises a Supervisor
type Option func(*Supervisor)

// WithTerminator replaces the platform default termination strategy
func WithTerminator(t Terminator) Option {
	return func(s *Supervisor) {
		s.terminator = t
	}
}

// WithOutput redirects the utility's standard streams, they are inherited
// from this process otherwise.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// NewSupervisor creates an idle supervisor. The kill signal is resolved
// here so an invalid name is reported once at startup and not on every kill.
func NewSupervisor(logger logrus.FieldLogger, signalName string, opts ...Option) (*Supervisor, error) {
	sig, err := ResolveSignal(signalName)
	if err != nil {
		return nil, err
	}

	becomeSubreaper()

	s := &Supervisor{
		logger:     logger,
		terminator: DefaultTerminator(),
		signal:     sig,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signal is the resolved signal sent on Terminate
func (s *Supervisor) Signal() os.Signal {
	return s.signal
}

// Current returns the running utility, nil when idle
func (s *Supervisor) Current() *Process {
	return s.current
}

// Running reports whether a utility is current. A utility that exited on its
// own is still current until Terminate is called.
func (s *Supervisor) Running() bool {
	return s.current != nil
}

// Spawn starts command in a new process group. It returns as soon as the
// process has started, the utility's output is streamed concurrently.
func (s *Supervisor) Spawn(command []string) (*Process, error) {
	if len(command) == 0 {
		return nil, ErrNoCommand
	}
	if s.current != nil {
		return nil, ErrAlreadyRunning
	}

	program := command[0]
	cmd := exec.Command(program, command[1:]...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.SysProcAttr = newProcessGroupAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: failed to run the provided utility: %w", program, err)
	}

	id := uuid.NewString()
	logger := s.logger.
		WithField("run", id).
		WithField("pid", cmd.Process.Pid).
		WithField("program", program)

	proc := &Process{
		ID:      id,
		Program: program,
		cmd:     cmd,
		pgid:    processGroupOf(cmd.Process.Pid),
		logger:  logger,
		done:    make(chan struct{}),
	}

	go proc.wait()

	logger.Debug("Utility started")

	s.current = proc
	return proc, nil
}

// Terminate sends the configured signal to the current utility and waits
// for it to exit. It is a no-op when idle, and succeeds when the utility
// already exited on its own. On error the utility stays current.
func (s *Supervisor) Terminate() error {
	proc := s.current
	if proc == nil {
		return nil
	}

	logger := s.logger.
		WithField("run", proc.ID).
		WithField("pid", proc.Pid()).
		WithField("signal", s.signal.String())

	if proc.Exited() {
		logger.Debug("Utility already exited")
	} else {
		logger.Debug("Terminating utility")
	}

	if err := s.terminator.Terminate(proc, s.signal); err != nil {
		return fmt.Errorf("terminate %s (pid %d): %w", proc.Program, proc.Pid(), err)
	}

	s.current = nil
	return nil
}

// Process is one spawned instance of the utility
type Process struct {
	// ID tags every log line of this run
	ID      string
	Program string

	cmd    *exec.Cmd
	pgid   int
	logger logrus.FieldLogger

	// done is closed once the utility has exited. Where the platform
	// allows it the exited utility is left unreaped, so its pid and process
	// group id stay reserved until reap is called.
	done     chan struct{}
	reapOnce sync.Once
	reaped   atomic.Bool
	err      error
}

// Pid of the utility itself
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Pgid is the process group the utility leads, equal to Pid where process
// groups are unavailable.
func (p *Process) Pgid() int {
	return p.pgid
}

// Done is closed once the utility has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the utility has exited
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err waits for the utility and returns its result. It reaps the utility,
// after which its ids may be reused and Terminate no longer signals them.
func (p *Process) Err() error {
	<-p.done
	return p.reap()
}

// Reaped reports whether the exit status has been collected
func (p *Process) Reaped() bool {
	return p.reaped.Load()
}

func (p *Process) wait() {
	if err := awaitExit(p); err != nil {
		p.logger.WithError(err).Debug("Could not observe exit, reaping instead")
		p.reap()
	}
	close(p.done)
}

// reap collects the exit status once, releasing the pid
func (p *Process) reap() error {
	p.reapOnce.Do(func() {
		p.err = p.cmd.Wait()
		p.reaped.Store(true)

		var exitErr *exec.ExitError
		switch {
		case p.err == nil:
			p.logger.Debug("Utility finished")
		case errors.As(p.err, &exitErr):
			p.logger.WithField("status", exitErr.ExitCode()).Debug("Utility finished with non-zero status")
		default:
			p.logger.WithError(p.err).Warn("Waiting for utility failed")
		}
	})
	return p.err
}
