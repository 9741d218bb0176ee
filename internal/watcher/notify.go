package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// retryInterval is how often a watched file that disappeared is looked for
var retryInterval = 100 * time.Millisecond

// notify is the backend built on OS filesystem notifications
type notify struct {
	logger  logrus.FieldLogger
	watcher *fsnotify.Watcher

	// recursive directory targets, new directories below them are watched
	roots []string
	// file targets, re-added when replaced by an atomic save
	files map[string]struct{}
	dirs  *dirSet

	out       chan string
	errs      chan error
	quit      chan struct{}
	closeOnce sync.Once
}

func newNotify(logger logrus.FieldLogger) (*notify, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &notify{
		logger:  logger,
		watcher: w,
		files:   make(map[string]struct{}),
		dirs:    newDirSet(),
		out:     make(chan string),
		errs:    make(chan error),
		quit:    make(chan struct{}),
	}, nil
}

func (n *notify) add(target Target) error {
	// absolute, so event paths can be compared against roots
	path, err := filepath.Abs(target.Path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", target.Path, err)
	}

	// the stat error names the path already
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() && target.Recursive {
		n.roots = append(n.roots, path)
		return n.addTree(path)
	}

	if err := n.watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", target.Path, err)
	}
	if info.IsDir() {
		n.dirs.add(path)
	} else {
		n.files[path] = struct{}{}
	}
	return nil
}

// addTree watches root and every directory below it
func (n *notify) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := n.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		n.dirs.add(path)
		return nil
	})
}

func (n *notify) start() error {
	go n.loop()
	return nil
}

func (n *notify) events() <-chan string { return n.out }

func (n *notify) errors() <-chan error { return n.errs }

func (n *notify) knownDir(path string) bool { return n.dirs.has(path) }

func (n *notify) close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.quit)
		err = n.watcher.Close()
	})
	return err
}

func (n *notify) loop() {
	defer close(n.out)
	defer close(n.errs)

	missing := make(map[string]struct{})
	var retry *time.Ticker
	var retryC <-chan time.Time
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-n.quit:
			return

		case event, open := <-n.watcher.Events:
			if !open {
				return
			}

			if !relevant(event) {
				continue
			}

			if event.Has(fsnotify.Create) && isDir(event.Name) {
				n.dirs.add(event.Name)
				if n.underRoot(event.Name) {
					if err := n.addTree(event.Name); err != nil && !n.sendError(err) {
						return
					}
				}
			}

			if (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && n.isFile(event.Name) {
				if err := n.watcher.Add(event.Name); err != nil {
					missing[event.Name] = struct{}{}
					if retry == nil {
						retry = time.NewTicker(retryInterval)
						retryC = retry.C
					}
				}
			}

			if !n.sendPath(event.Name) {
				return
			}

		case err, open := <-n.watcher.Errors:
			if !open {
				return
			}
			if !n.sendError(err) {
				return
			}

		case <-retryC:
			for path := range missing {
				if err := n.watcher.Add(path); err != nil {
					continue
				}
				delete(missing, path)
				n.logger.WithField("path", path).Debug("Watching again")
				if !n.sendPath(path) {
					return
				}
			}
			if len(missing) == 0 {
				retry.Stop()
				retry = nil
				retryC = nil
			}
		}
	}
}

// relevant drops notifications that only report permission or attribute
// changes
func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}

func (n *notify) underRoot(path string) bool {
	for _, root := range n.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (n *notify) isFile(path string) bool {
	_, ok := n.files[path]
	return ok
}

func (n *notify) sendPath(path string) bool {
	select {
	case n.out <- path:
		return true
	case <-n.quit:
		return false
	}
}

func (n *notify) sendError(err error) bool {
	select {
	case n.errs <- err:
		return true
	case <-n.quit:
		return false
	}
}
