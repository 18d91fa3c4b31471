// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package tracking

import (
	"context"
	"sync"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
)

// watcherChannel is the continuous position subscription: it fires on every
// new fix while the process is alive, reacting faster than the scheduled
// task. Watch errors are logged and ignored — the other channels cover the
// gap, which is the point of running three.
type watcherChannel struct {
	platform location.Service
	opts     location.WatchOptions
	emit     emitFunc

	mu  sync.Mutex
	sub location.Subscription
}

func newWatcherChannel(platform location.Service, opts location.WatchOptions, emit emitFunc) *watcherChannel {
	return &watcherChannel{platform: platform, opts: opts, emit: emit}
}

func (c *watcherChannel) Name() string { return "watcher" }

func (c *watcherChannel) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}

	sub, err := c.platform.WatchPosition(c.opts,
		func(pos location.Position) {
			metrics.SamplesAcquired.WithLabelValues(c.Name()).Inc()
			c.emit(pos, c.Name())
		},
		func(err error) {
			logging.Warn().Err(err).Msg("position watch error")
		},
	)
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

func (c *watcherChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return
	}
	c.sub.Stop()
	c.sub = nil
}
