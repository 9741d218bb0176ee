package executor

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

var subreaperOnce sync.Once

// becomeSubreaper makes orphaned descendants of the utility reparent to this
// process rather than init, so they can be reaped by reapGroup. Without it
// a member killed after its parent lingers as a zombie wherever pid 1 does
// not reap.
func becomeSubreaper() {
	subreaperOnce.Do(func() {
		_ = unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
	})
}

// reapGroup collects every exited member of the group that is our child.
// It must only run once the leader has been waited on.
func reapGroup(pgid int) {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-pgid, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
	}
}

// awaitExit blocks until the utility exits without reaping it, the zombie
// holds on to its pid and process group id
func awaitExit(proc *Process) error {
	for {
		var info unix.Siginfo
		err := unix.Waitid(unix.P_PID, proc.Pid(), &info, unix.WEXITED|unix.WNOWAIT, nil)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
