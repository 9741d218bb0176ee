package watcher

import (
	"sort"
	"time"
)

// debouncer collects raw paths until no new one has arrived for a full
// window. It is owned by a single goroutine and does no locking.
//
// A path that keeps changing would hold the window open forever, so a
// pending set is released at the latest maxWait after its first path.
type debouncer struct {
	window  time.Duration
	maxWait time.Duration

	pending map[string]struct{}
	first   time.Time
	timer   *time.Timer
	now     func() time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		maxWait: 20 * window,
		pending: make(map[string]struct{}),
		now:     time.Now,
	}
}

// add records path and restarts the quiescence window
func (d *debouncer) add(path string) {
	now := d.now()
	if len(d.pending) == 0 {
		d.first = now
	}
	d.pending[path] = struct{}{}

	wait := d.window
	if remaining := d.maxWait - now.Sub(d.first); remaining < wait {
		wait = remaining
	}
	if wait < 0 {
		wait = 0
	}

	if d.timer == nil {
		d.timer = time.NewTimer(wait)
		return
	}
	d.timer.Reset(wait)
}

// due fires once the window has elapsed, nil while nothing is pending
func (d *debouncer) due() <-chan time.Time {
	if d.timer == nil || len(d.pending) == 0 {
		return nil
	}
	return d.timer.C
}

// flush hands out the pending paths in sorted order and empties the set
func (d *debouncer) flush() []string {
	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	d.pending = make(map[string]struct{})
	return paths
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
