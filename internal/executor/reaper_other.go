//go:build !linux

package executor

func becomeSubreaper() {}

func reapGroup(pgid int) {}

// awaitExit reaps straight away where exit cannot be observed on its own
func awaitExit(proc *Process) error {
	_ = proc.reap()
	return nil
}
