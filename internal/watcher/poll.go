package watcher

import (
	"fmt"
	"sync"
	"time"

	filewatcher "github.com/radovskyb/watcher"
	"github.com/sirupsen/logrus"
)

// poll is the backend that scans the watched paths at a fixed interval, for
// filesystems that do not deliver OS notifications
type poll struct {
	logger   logrus.FieldLogger
	watcher  *filewatcher.Watcher
	interval time.Duration
	dirs     *dirSet

	out       chan string
	errs      chan error
	quit      chan struct{}
	closeOnce sync.Once
}

func newPoll(logger logrus.FieldLogger, interval time.Duration) *poll {
	watcher := filewatcher.New()
	watcher.IgnoreHiddenFiles(false)
	// Chmod is left out, permission changes never count as a change
	watcher.FilterOps(
		filewatcher.Create,
		filewatcher.Write,
		filewatcher.Remove,
		filewatcher.Rename,
		filewatcher.Move,
	)

	return &poll{
		logger:   logger,
		watcher:  watcher,
		interval: interval,
		dirs:     newDirSet(),
		out:      make(chan string),
		errs:     make(chan error),
		quit:     make(chan struct{}),
	}
}

func (p *poll) add(target Target) error {
	var err error
	if target.Recursive {
		err = p.watcher.AddRecursive(target.Path)
	} else {
		err = p.watcher.Add(target.Path)
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", target.Path, err)
	}

	for path, info := range p.watcher.WatchedFiles() {
		if info.IsDir() {
			p.dirs.add(path)
		}
	}
	return nil
}

func (p *poll) start() error {
	started := make(chan error, 1)

	go func() {
		// Start blocks until the watcher is closed
		started <- p.watcher.Start(p.interval)
	}()
	go p.loop(started)

	return nil
}

func (p *poll) events() <-chan string { return p.out }

func (p *poll) errors() <-chan error { return p.errs }

func (p *poll) knownDir(path string) bool { return p.dirs.has(path) }

func (p *poll) close() error {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.watcher.Close()
	})
	return nil
}

func (p *poll) loop(started <-chan error) {
	defer close(p.out)
	defer close(p.errs)

	for {
		select {
		case <-p.quit:
			p.drain()
			return

		case err := <-started:
			if err != nil {
				p.logger.WithError(err).Error("Polling watcher failed to start")
			}
			return

		case <-p.watcher.Closed:
			return

		case event := <-p.watcher.Event:
			// removal events still carry the last known file info
			if event.FileInfo != nil && event.IsDir() {
				p.dirs.add(event.Path)
				if event.OldPath != "" {
					p.dirs.add(event.OldPath)
				}
			}
			if event.Op == filewatcher.Rename || event.Op == filewatcher.Move {
				if !p.send(event.OldPath) {
					p.drain()
					return
				}
			}
			if !p.send(event.Path) {
				p.drain()
				return
			}

		case err := <-p.watcher.Error:
			select {
			case p.errs <- err:
			case <-p.quit:
				p.drain()
				return
			}
		}
	}
}

// drain keeps the polling goroutine from blocking on a send while Close
// waits for it to notice the close request
func (p *poll) drain() {
	for {
		select {
		case <-p.watcher.Closed:
			return
		case <-p.watcher.Event:
		case <-p.watcher.Error:
		}
	}
}

func (p *poll) send(path string) bool {
	if path == "" {
		return true
	}
	select {
	case p.out <- path:
		return true
	case <-p.quit:
		return false
	}
}
