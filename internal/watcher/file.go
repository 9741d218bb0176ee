package watcher

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrFileWatcherAlreadyClosed  = errors.New("Already stopped")
	ErrFileWatcherAlreadyRunning = errors.New("Already running")
)

// DefaultWindow is the quiescence window used to coalesce raw events.
// A single save commonly produces several writes within a few milliseconds.
const DefaultWindow = 50 * time.Millisecond

// Target is a path to watch. Recursive only has an effect on directories.
type Target struct {
	Path      string
	Recursive bool
}

// Change is one path that changed within a batch
type Change struct {
	Path  string
	IsDir bool
}

// Batch is either a set of changes collected over one quiescence window, or
// an error reported by the underlying notification mechanism.
type Batch struct {
	Changes []Change
	Err     error
}

// backend is the source of raw change notifications. Implementations drop
// notifications without content relevance (access, permission bits) before
// sending a path.
type backend interface {
	add(target Target) error
	start() error
	events() <-chan string
	errors() <-chan error
	close() error
	// knownDir reports whether path was seen as a directory, it answers for
	// paths that have been removed since
	knownDir(path string) bool
}

// Options selects the notification backend
type Options struct {
	// Poll switches from OS notifications to polling at this interval
	Poll time.Duration
	// Window overrides DefaultWindow
	Window time.Duration
}

// File watches targets and delivers debounced batches of changes
type File struct {
	runningMu sync.Mutex
	isRunning bool
	isClosed  bool
	close     chan struct{}
	done      chan struct{}

	logger  logrus.FieldLogger
	backend backend
	window  time.Duration
	batches chan Batch
}

// NewFile creates a watcher using OS notifications, or polling when
// opts.Poll is set.
func NewFile(logger logrus.FieldLogger, opts Options) (*File, error) {
	var (
		b   backend
		err error
	)
	if opts.Poll > 0 {
		b = newPoll(logger, opts.Poll)
	} else {
		b, err = newNotify(logger)
		if err != nil {
			return nil, err
		}
	}

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}

	return &File{
		close:   make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
		backend: b,
		window:  window,
		batches: make(chan Batch),
	}, nil
}

// Add registers a target. All targets should be added before Run.
func (file *File) Add(target Target) error {
	if err := file.backend.add(target); err != nil {
		return err
	}

	file.logger.
		WithField("path", target.Path).
		WithField("recursive", target.Recursive).
		Debug("Watching")
	return nil
}

// Batches is closed when the watcher stops, whether by Stop or because the
// backend failed.
func (file *File) Batches() <-chan Batch {
	return file.batches
}

// Run starts delivering batches, it does not block
func (file *File) Run() error {
	file.runningMu.Lock()
	defer file.runningMu.Unlock()

	if file.isClosed {
		return ErrFileWatcherAlreadyClosed
	}
	if file.isRunning {
		return ErrFileWatcherAlreadyRunning
	}

	if err := file.backend.start(); err != nil {
		return err
	}

	file.isRunning = true
	go file.pump()
	return nil
}

// Stop shuts down the backend and waits for delivery to end
func (file *File) Stop(ctx context.Context) error {
	file.runningMu.Lock()
	defer file.runningMu.Unlock()

	if file.isClosed {
		return ErrFileWatcherAlreadyClosed
	}
	file.isClosed = true
	close(file.close)

	err := file.backend.close()

	if !file.isRunning {
		close(file.batches)
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-file.done:
		return err
	}
}

// pump is the only sender on batches
func (file *File) pump() {
	defer close(file.done)
	defer close(file.batches)

	debounce := newDebouncer(file.window)
	defer debounce.stop()

	events := file.backend.events()
	errs := file.backend.errors()

	for {
		select {
		case <-file.close:
			return

		case path, open := <-events:
			if !open {
				if !file.stopping() {
					file.logger.Error("File notifications stopped unexpectedly")
				}
				return
			}
			debounce.add(path)

		case err, open := <-errs:
			if !open {
				errs = nil
				continue
			}
			if !file.send(Batch{Err: err}) {
				return
			}

		case <-debounce.due():
			batch := Batch{}
			for _, path := range debounce.flush() {
				batch.Changes = append(batch.Changes, file.describe(path))
			}
			if len(batch.Changes) > 0 && !file.send(batch) {
				return
			}
		}
	}
}

func (file *File) send(batch Batch) bool {
	select {
	case file.batches <- batch:
		return true
	case <-file.close:
		return false
	}
}

func (file *File) stopping() bool {
	select {
	case <-file.close:
		return true
	default:
		return false
	}
}

// describe builds the Change for path. A removed path is a directory when
// the backend saw it as one.
func (file *File) describe(path string) Change {
	info, err := os.Lstat(path)
	if err != nil {
		return Change{Path: path, IsDir: file.backend.knownDir(path)}
	}
	return Change{Path: path, IsDir: info.IsDir()}
}

// isDir is false for paths that no longer exist
func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

// dirSet remembers the directories a backend has seen. It is written by the
// backend goroutine and read by the pump.
type dirSet struct {
	mu   sync.RWMutex
	dirs map[string]struct{}
}

func newDirSet() *dirSet {
	return &dirSet{dirs: make(map[string]struct{})}
}

func (set *dirSet) add(path string) {
	set.mu.Lock()
	defer set.mu.Unlock()
	set.dirs[path] = struct{}{}
}

func (set *dirSet) has(path string) bool {
	set.mu.RLock()
	defer set.mu.RUnlock()
	_, ok := set.dirs[path]
	return ok
}
