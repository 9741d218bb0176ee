//go:build unix

package executor

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// groupPollInterval is how often the process group is probed for
// remaining members after the leader has been reaped
var groupPollInterval = 10 * time.Millisecond

func newProcessGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func processGroupOf(pid int) int {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return pid
	}
	return pgid
}

// DefaultTerminator signals the whole process group
func DefaultTerminator() Terminator {
	return GroupTerminator{}
}

// GroupTerminator sends the signal to every member of the utility's process
// group, reaching anything the utility itself started, then waits until the
// group is empty. There is no timeout, a member that ignores the signal
// blocks Terminate indefinitely.
type GroupTerminator struct{}

func (GroupTerminator) Terminate(proc *Process, sig os.Signal) error {
	num, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, sig)
	}

	if proc.Reaped() {
		return nil
	}

	// The unreaped leader keeps pgid reserved, the signal cannot reach an
	// unrelated group
	pgid := proc.Pgid()

	err := unix.Kill(-pgid, num)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pgid, err)
	}

	<-proc.Done()
	_ = proc.reap()

	return waitGroupExit(pgid)
}

// waitGroupExit blocks until no process remains in the group
func waitGroupExit(pgid int) error {
	for {
		reapGroup(pgid)

		err := unix.Kill(-pgid, 0)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		// EPERM still means a member exists
		if err != nil && !errors.Is(err, unix.EPERM) {
			return fmt.Errorf("probe process group %d: %w", pgid, err)
		}
		time.Sleep(groupPollInterval)
	}
}
