// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
)

// TaskID is the platform registration key for the scheduled update task.
// One per process; re-registering it is a no-op on the platform side.
const TaskID = "safenet-background-location"

// scheduledChannel receives fixes from the OS-scheduled background task —
// the only path that keeps producing while the process is suspended. The
// platform may buffer fixes and deliver them late, so anything older than
// the session start or the stale cutoff is discarded.
type scheduledChannel struct {
	platform location.Service
	opts     location.ScheduleOptions
	emit     emitFunc

	// sessionStart and maxAge bound which fixes are still worth sending.
	sessionStart time.Time
	maxAge       time.Duration

	mu      sync.Mutex
	running bool
}

func newScheduledChannel(platform location.Service, opts location.ScheduleOptions, sessionStart time.Time, maxAge time.Duration, emit emitFunc) *scheduledChannel {
	return &scheduledChannel{
		platform:     platform,
		opts:         opts,
		emit:         emit,
		sessionStart: sessionStart,
		maxAge:       maxAge,
	}
}

func (c *scheduledChannel) Name() string { return "scheduled" }

func (c *scheduledChannel) Start(_ context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	return c.platform.StartScheduledUpdates(TaskID, c.opts, c.deliver)
}

func (c *scheduledChannel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	if err := c.platform.StopScheduledUpdates(TaskID); err != nil {
		logging.Warn().Err(err).Msg("failed to deregister scheduled updates")
	}
}

// deliver filters buffered/stale fixes before emitting. Dropping them is not
// an error: a fix captured before this session, or more than maxAge ago, is
// history, not the user's current location.
func (c *scheduledChannel) deliver(pos location.Position) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}

	if pos.CapturedAt.Before(c.sessionStart) || time.Since(pos.CapturedAt) > c.maxAge {
		metrics.SamplesStale.WithLabelValues(c.Name()).Inc()
		logging.Debug().
			Time("captured_at", pos.CapturedAt).
			Time("session_start", c.sessionStart).
			Msg("stale scheduled fix discarded")
		return
	}

	metrics.SamplesAcquired.WithLabelValues(c.Name()).Inc()
	c.emit(pos, c.Name())
}
