package executor

import (
	"errors"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/assert"
)

// mockProcess mocks `ps.Process`
type mockProcess struct {
	pid  int
	ppid int
}

func (m mockProcess) Executable() string {
	return "mock"
}

func (m mockProcess) PPid() int {
	return m.ppid
}

func (m mockProcess) Pid() int {
	return m.pid
}

func TestDescendants(t *testing.T) {
	d := &DirectTerminator{
		source: func() ([]ps.Process, error) {
			return []ps.Process{
				mockProcess{pid: 1, ppid: 0},
				mockProcess{pid: 10, ppid: 1},
				mockProcess{pid: 11, ppid: 10},
				mockProcess{pid: 12, ppid: 10},
				mockProcess{pid: 13, ppid: 12},
				mockProcess{pid: 20, ppid: 1},
			}, nil
		},
	}

	assert.Equal(t, []int{11, 12, 13}, d.descendants(10))
	assert.Empty(t, d.descendants(13))
}

func TestDescendantsSourceFails(t *testing.T) {
	d := &DirectTerminator{
		source: func() ([]ps.Process, error) {
			return nil, errors.New("no process table")
		},
	}

	assert.Empty(t, d.descendants(10))
}

func TestShellWrap(t *testing.T) {
	env := map[string]string{}
	shell := &Shell{
		goos: "linux",
		lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}

	assert.Equal(t, []string{"/bin/sh", "-c", "make test"}, shell.Wrap([]string{"make test"}))

	env["SHELL"] = "/usr/bin/zsh"
	assert.Equal(t, []string{"/usr/bin/zsh", "-c", "echo $0", "x"}, shell.Wrap([]string{"echo $0", "x"}))

	shell.goos = "windows"
	assert.Equal(t, []string{"cmd", "/c", "dir"}, shell.Wrap([]string{"dir"}))
}
