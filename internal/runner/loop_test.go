package runner

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mickyco94/rerun/internal/config"
	"github.com/mickyco94/rerun/internal/executor"
	"github.com/mickyco94/rerun/internal/watcher"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	batches chan watcher.Batch
}

func (w *fakeWatcher) Batches() <-chan watcher.Batch {
	return w.batches
}

// fakeMatcher ignores every path below one of its prefixes
type fakeMatcher struct {
	prefixes []string
}

func (m fakeMatcher) IsIgnored(path string, isDir bool) bool {
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// fakeSupervisor records calls and flags any spawn while a run is current
type fakeSupervisor struct {
	mu         sync.Mutex
	running    bool
	spawns     [][]string
	terminates int
	overlaps   int
	spawnErrs  []error

	spawned chan struct{}
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		spawned: make(chan struct{}, 16),
	}
}

func (s *fakeSupervisor) Spawn(command []string) (*executor.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.spawnErrs) > 0 {
		err := s.spawnErrs[0]
		s.spawnErrs = s.spawnErrs[1:]
		if err != nil {
			s.spawned <- struct{}{}
			return nil, err
		}
	}

	if s.running {
		s.overlaps++
	}
	s.running = true
	s.spawns = append(s.spawns, command)
	s.spawned <- struct{}{}
	return nil, nil
}

func (s *fakeSupervisor) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.terminates++
	}
	s.running = false
	return nil
}

func (s *fakeSupervisor) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawns)
}

type harness struct {
	cfg        *config.Config
	files      *fakeWatcher
	supervisor *fakeSupervisor
	interrupt  chan os.Signal
	schedule   chan struct{}
	sleeps     []time.Duration
	clears     int
	loop       *Loop
}

func newHarness(cfg *config.Config, ignored ...string) *harness {
	h := &harness{
		cfg:        cfg,
		files:      &fakeWatcher{batches: make(chan watcher.Batch, 4)},
		supervisor: newFakeSupervisor(),
		interrupt:  make(chan os.Signal, 1),
		schedule:   make(chan struct{}, 1),
	}

	h.loop = NewLoop(
		logrus.New(),
		cfg,
		h.files,
		fakeMatcher{prefixes: ignored},
		h.supervisor,
		h.interrupt,
		h.schedule,
	)
	h.loop.sleep = func(d time.Duration) {
		h.sleeps = append(h.sleeps, d)
	}
	h.loop.clear = func() error {
		h.clears++
		return nil
	}
	return h
}

// start runs the loop on its own goroutine, the returned channel receives
// its result
func (h *harness) start() <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- h.loop.Run()
	}()
	return result
}

func (h *harness) awaitSpawn(t *testing.T) {
	t.Helper()
	select {
	case <-h.supervisor.spawned:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for a run")
	}
}

func (h *harness) assertNoSpawn(t *testing.T) {
	t.Helper()
	select {
	case <-h.supervisor.spawned:
		t.Error("unexpected run")
	case <-time.After(100 * time.Millisecond):
	}
}

func (h *harness) stop(t *testing.T, result <-chan error) {
	t.Helper()
	h.interrupt <- os.Interrupt
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the loop to exit")
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Targets = []string{"a.txt"}
	cfg.Command = []string{"echo", "hi"}
	return cfg
}

func batchOf(paths ...string) watcher.Batch {
	batch := watcher.Batch{}
	for _, path := range paths {
		batch.Changes = append(batch.Changes, watcher.Change{Path: path})
	}
	return batch
}

func TestExitAfterFirstRun(t *testing.T) {
	cfg := testConfig()
	cfg.ExitAfterFirstRun = true
	h := newHarness(cfg)
	h.files.batches <- batchOf("a.txt")

	err := h.loop.Run()

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"echo", "hi"}}, h.supervisor.spawns)
	assert.Equal(t, 1, h.loop.Runs())
	// the pending change was never consumed
	assert.Len(t, h.files.batches, 1)
}

func TestImmediateRunBeforeWaiting(t *testing.T) {
	h := newHarness(testConfig())

	result := h.start()
	h.awaitSpawn(t)
	h.assertNoSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestPostponeWaitsForChange(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	h := newHarness(cfg)

	result := h.start()
	h.assertNoSpawn(t)

	h.files.batches <- batchOf("a.txt")
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestPostponeWithExitAfterFirstRun(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	cfg.ExitAfterFirstRun = true
	h := newHarness(cfg)
	h.files.batches <- batchOf("a.txt")

	err := h.loop.Run()

	require.NoError(t, err)
	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestBatchCollapsesToOneRun(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	h := newHarness(cfg)

	result := h.start()
	h.files.batches <- batchOf("a.txt", "b.txt", "c.txt", "d.txt")
	h.awaitSpawn(t)
	h.assertNoSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestIgnoredBatchDoesNotRun(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	h := newHarness(cfg, "build/")

	result := h.start()
	h.files.batches <- batchOf("build/output.txt", "build/other.o")
	h.assertNoSpawn(t)

	h.files.batches <- batchOf("build/output.txt", "src/main.go", "build/other.o")
	h.awaitSpawn(t)
	h.assertNoSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestErrorBatchIsReportedOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	h := newHarness(cfg)

	result := h.start()
	h.files.batches <- watcher.Batch{Err: errors.New("queue overflow")}
	h.assertNoSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 0, h.supervisor.spawnCount())
}

func TestRerunReplacesPreviousRun(t *testing.T) {
	h := newHarness(testConfig())

	result := h.start()
	h.awaitSpawn(t)
	h.files.batches <- batchOf("a.txt")
	h.awaitSpawn(t)
	h.files.batches <- batchOf("a.txt")
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 3, h.supervisor.spawnCount())
	assert.Equal(t, 0, h.supervisor.overlaps)
	// two replacements and the shutdown
	assert.Equal(t, 3, h.supervisor.terminates)
}

func TestDelaySkippedOnFirstRun(t *testing.T) {
	cfg := testConfig()
	cfg.Delay = 250 * time.Millisecond
	cfg.ClearTerm = true
	h := newHarness(cfg)

	result := h.start()
	h.awaitSpawn(t)
	h.files.batches <- batchOf("a.txt")
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Equal(t, []time.Duration{250 * time.Millisecond}, h.sleeps)
	assert.Equal(t, 2, h.clears)
}

func TestZeroDelayDoesNotSleep(t *testing.T) {
	cfg := testConfig()
	cfg.Delay = 0
	h := newHarness(cfg)

	result := h.start()
	h.awaitSpawn(t)
	h.files.batches <- batchOf("a.txt")
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Empty(t, h.sleeps)
}

func TestClearFailureStillRuns(t *testing.T) {
	cfg := testConfig()
	cfg.ClearTerm = true
	cfg.ExitAfterFirstRun = true
	h := newHarness(cfg)
	h.loop.clear = func() error {
		return errors.New("no terminal")
	}

	require.NoError(t, h.loop.Run())

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestIdleTimeoutReruns(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	timeout := 50 * time.Millisecond
	cfg.IdleTimeout = &timeout
	h := newHarness(cfg)

	result := h.start()
	h.awaitSpawn(t)
	h.awaitSpawn(t)
	h.stop(t, result)
}

func TestScheduleReruns(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	h := newHarness(cfg)

	result := h.start()
	h.schedule <- struct{}{}
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestSpawnFailureKeepsWaiting(t *testing.T) {
	h := newHarness(testConfig())
	h.supervisor.spawnErrs = []error{errors.New("./scirpt.sh: no such file")}

	result := h.start()
	h.awaitSpawn(t)
	h.files.batches <- batchOf("a.txt")
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.spawnCount())
}

func TestInterruptTerminatesRun(t *testing.T) {
	h := newHarness(testConfig())

	result := h.start()
	h.awaitSpawn(t)
	h.stop(t, result)

	assert.Equal(t, 1, h.supervisor.terminates)
	assert.False(t, h.supervisor.running)
}

func TestClosedWatcherIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Postpone = true
	h := newHarness(cfg)
	close(h.files.batches)

	err := h.loop.Run()

	assert.ErrorIs(t, err, ErrWatcherClosed)
}
