package executor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// fallbackShell is used when $SHELL is unset
const fallbackShell = "/bin/sh"

// Shell wraps a utility so it is evaluated by the user's interpreter.
//
// Defaults:
// - POSIX uses $SHELL, falling back to /bin/sh, invoked with -c
// - Windows uses cmd /c
type Shell struct {
	goos   string
	lookup func(string) (string, bool)
}

// NewShell creates a Shell for the running platform and environment
func NewShell() *Shell {
	return &Shell{
		goos:   runtime.GOOS,
		lookup: os.LookupEnv,
	}
}

// getShell determines the interpreter and the flag that makes it evaluate
// its next argument.
func (shell *Shell) getShell() (string, string) {
	if shell.goos == "windows" {
		return "cmd", "/c"
	}

	s, exists := shell.lookup("SHELL")
	if !exists || s == "" {
		return fallbackShell, "-c"
	}
	return s, "-c"
}

// Wrap prefixes command with the interpreter invocation. The first element
// of command becomes the script, the rest its positional parameters.
func (shell *Shell) Wrap(command []string) []string {
	sh, flag := shell.getShell()

	wrapped := make([]string, 0, len(command)+2)
	wrapped = append(wrapped, sh, flag)
	return append(wrapped, command...)
}

// ClearTerminal clears the screen the utility writes to
func ClearTerminal(out io.Writer) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "cls")
	} else {
		cmd = exec.Command("clear")
	}
	cmd.Stdout = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clear terminal screen: %w", err)
	}
	return nil
}
