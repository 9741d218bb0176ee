package watcher

import (
	"context"
	"fmt"

	internal "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// parser accepts standard five field specs, an optional leading seconds
// field and descriptors such as "@every 10s"
var parser = internal.NewParser(
	internal.SecondOptional |
		internal.Minute |
		internal.Hour |
		internal.Dom |
		internal.Month |
		internal.Dow |
		internal.Descriptor,
)

// Cron is a decorator of the cron lib that turns schedule activations into
// ticks on a channel, so it can take part in a select like any other source
type Cron struct {
	logger logrus.FieldLogger
	inner  *internal.Cron
	ticks  chan struct{}
}

// NewCron constructs a new cron schedule watcher
func NewCron(logger logrus.FieldLogger) *Cron {
	return &Cron{
		logger: logger,
		inner:  internal.New(internal.WithParser(parser)),
		// one pending tick is enough, activations are not queued up
		ticks: make(chan struct{}, 1),
	}
}

// Schedule registers spec, ticking on every activation
func (cron *Cron) Schedule(spec string) error {
	_, err := cron.inner.AddFunc(spec, func() {
		select {
		case cron.ticks <- struct{}{}:
		default:
			cron.logger.WithField("schedule", spec).Debug("Skipping activation, previous one still pending")
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return nil
}

// Ticks receives one value per activation
func (cron *Cron) Ticks() <-chan struct{} {
	return cron.ticks
}

// Start runs the scheduler on its own goroutine
func (cron *Cron) Start() { cron.inner.Start() }

// Stop shuts down the cron watcher and attempts to wait for any currently
// running functions attached to the scheduler to exit before the provided
// context is done.
func (cron *Cron) Stop(ctx context.Context) error {
	runningJobsCtx := cron.inner.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-runningJobsCtx.Done():
		return nil
	}
}
