//go:build unix

package executor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ResolveSignal maps a signal name such as "TERM", "SIGTERM", "sigkill" or
// a signal number to the platform signal.
func ResolveSignal(name string) (os.Signal, error) {
	normalised := strings.ToUpper(strings.TrimSpace(name))
	if normalised == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidSignal)
	}

	if n, err := strconv.Atoi(normalised); err == nil {
		sig := syscall.Signal(n)
		if n <= 0 || unix.SignalName(sig) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSignal, name)
		}
		return sig, nil
	}

	if !strings.HasPrefix(normalised, "SIG") {
		normalised = "SIG" + normalised
	}

	sig := unix.SignalNum(normalised)
	if sig == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignal, name)
	}
	return sig, nil
}
