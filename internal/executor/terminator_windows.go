//go:build windows

package executor

import (
	"syscall"
)

func newProcessGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Windows process groups cannot be signalled, so the pid stands in
func processGroupOf(pid int) int {
	return pid
}

// DefaultTerminator kills the utility and its direct descendants
func DefaultTerminator() Terminator {
	return NewDirectTerminator()
}
