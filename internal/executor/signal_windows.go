//go:build windows

package executor

import (
	"fmt"
	"os"
	"strings"
)

// Windows can only kill a process, every recognised name resolves to os.Kill
var knownSignals = map[string]struct{}{
	"SIGTERM": {},
	"SIGKILL": {},
	"SIGINT":  {},
	"SIGHUP":  {},
	"SIGQUIT": {},
}

// ResolveSignal maps a POSIX signal name to the only termination Windows
// supports.
func ResolveSignal(name string) (os.Signal, error) {
	normalised := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(normalised, "SIG") {
		normalised = "SIG" + normalised
	}
	if _, ok := knownSignals[normalised]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignal, name)
	}
	return os.Kill, nil
}
