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

// pollerConfig parameterizes the timed polling fallback.
type pollerConfig struct {
	// Interval between active position requests.
	Interval time.Duration

	// PositionTimeout bounds a single fresh-fix request before falling
	// back to the cached last-known position.
	PositionTimeout time.Duration

	Tier location.AccuracyTier
}

// pollerChannel actively requests a fresh position on a fixed interval. It
// exists because the scheduled task can silently stop firing on some
// platforms; a dumb timer is the path of last resort that always works.
type pollerChannel struct {
	platform location.Service
	cfg      pollerConfig
	emit     emitFunc

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newPollerChannel(platform location.Service, cfg pollerConfig, emit emitFunc) *pollerChannel {
	return &pollerChannel{platform: platform, cfg: cfg, emit: emit}
}

func (c *pollerChannel) Name() string { return "poller" }

func (c *pollerChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	logging.Info().Dur("interval", c.cfg.Interval).Msg("position poller started")

	c.wg.Add(1)
	go c.pollLoop(ctx)
	return nil
}

func (c *pollerChannel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("position poller stopped")
}

func (c *pollerChannel) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	// First poll immediately so a fresh session gets a fix without waiting
	// out the interval.
	c.poll(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll requests a fresh fix, falling back to the platform's cached position
// when the request times out. A stale cached fix beats no fix at all for a
// safety tracker.
func (c *pollerChannel) poll(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.PositionTimeout)
	pos, err := c.platform.CurrentPosition(reqCtx, c.cfg.Tier)
	cancel()

	if err != nil {
		cached, ok, cacheErr := c.platform.LastKnownPosition(ctx)
		if cacheErr != nil || !ok {
			logging.Debug().Err(err).Msg("poll produced no position")
			return
		}
		logging.Debug().Err(err).Msg("fresh fix timed out, using cached position")
		pos = cached
	}

	metrics.SamplesAcquired.WithLabelValues(c.Name()).Inc()
	c.emit(pos, c.Name())
}
