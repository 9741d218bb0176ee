package executor

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-ps"
)

// DirectTerminator signals the utility itself rather than its process
// group, for platforms where groups cannot be signalled. Direct descendants
// found in the process table are signalled as well, on a best-effort basis:
// anything they started in turn is not tracked.
type DirectTerminator struct {
	source func() ([]ps.Process, error)
}

// NewDirectTerminator reads descendants from the system process table
func NewDirectTerminator() *DirectTerminator {
	return &DirectTerminator{
		source: ps.Processes,
	}
}

func (d *DirectTerminator) Terminate(proc *Process, sig os.Signal) error {
	if proc.Reaped() {
		return nil
	}

	// Snapshot before the utility is reaped and its children are
	// reparented. The pid is still reserved at this point.
	children := d.descendants(proc.Pid())

	err := proc.cmd.Process.Signal(sig)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal pid %d: %w", proc.Pid(), err)
	}

	<-proc.Done()
	_ = proc.reap()

	for _, pid := range children {
		child, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		_ = child.Signal(sig)
	}

	return nil
}

// descendants lists every process below pid, breadth first
func (d *DirectTerminator) descendants(pid int) []int {
	if d.source == nil {
		return nil
	}

	processes, err := d.source()
	if err != nil {
		return nil
	}

	children := make(map[int][]int)
	for _, p := range processes {
		children[p.PPid()] = append(children[p.PPid()], p.Pid())
	}

	found := make([]int, 0)
	queue := []int{pid}
	seen := map[int]struct{}{pid: {}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range children[next] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			found = append(found, child)
			queue = append(queue, child)
		}
	}
	return found
}
