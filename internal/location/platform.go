// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package location

import (
	"context"
	"errors"
	"time"
)

// AccuracyTier selects the platform's fix quality/power trade-off.
type AccuracyTier int

const (
	// AccuracyHigh requests GPS-grade fixes.
	AccuracyHigh AccuracyTier = iota

	// AccuracyBalanced accepts network-derived fixes to save power.
	AccuracyBalanced
)

func (t AccuracyTier) String() string {
	if t == AccuracyBalanced {
		return "balanced"
	}
	return "high"
}

// ErrNoPosition is returned when no fix is available at all,
// not even a cached one.
var ErrNoPosition = errors.New("no position available")

// ScheduleOptions configures platform-scheduled background updates.
type ScheduleOptions struct {
	Tier AccuracyTier

	// Interval is a hint for how often the platform should deliver fixes.
	Interval time.Duration
}

// WatchOptions configures a continuous position subscription.
type WatchOptions struct {
	Tier AccuracyTier

	// Interval is the minimum spacing between watch callbacks.
	Interval time.Duration
}

// Subscription is a handle on a continuous position watch.
type Subscription interface {
	// Stop cancels the subscription. Idempotent.
	Stop()
}

// Service abstracts the platform location stack: permissions, one-shot fixes,
// a continuous watcher, and OS-scheduled background updates that outlive the
// foreground process. Implementations must be safe for concurrent use.
type Service interface {
	// RequestForegroundPermission asks for while-in-use location access.
	RequestForegroundPermission(ctx context.Context) (bool, error)

	// RequestBackgroundPermission asks for always-on location access.
	// Granting requires the foreground permission first.
	RequestBackgroundPermission(ctx context.Context) (bool, error)

	// CurrentPosition requests a fresh fix. Honors ctx cancellation and
	// deadline; callers bound it with the configured position timeout.
	CurrentPosition(ctx context.Context, tier AccuracyTier) (Position, error)

	// LastKnownPosition returns the platform's cached fix, if any.
	LastKnownPosition(ctx context.Context) (Position, bool, error)

	// StartScheduledUpdates registers taskID for OS-scheduled background
	// fixes delivered through the scheduled update channel. Registering an
	// already-registered task is a no-op, not an error.
	StartScheduledUpdates(taskID string, opts ScheduleOptions, deliver func(Position)) error

	// StopScheduledUpdates deregisters taskID. Stopping an unregistered
	// task is a no-op.
	StopScheduledUpdates(taskID string) error

	// ScheduledUpdatesRunning reports whether the platform still considers
	// taskID registered. The OS may silently drop registrations; the
	// orchestrator's heartbeat checks this.
	ScheduledUpdatesRunning(taskID string) (bool, error)

	// WatchPosition starts a continuous subscription delivering every new
	// fix to onUpdate until the subscription is stopped.
	WatchPosition(opts WatchOptions, onUpdate func(Position), onError func(error)) (Subscription, error)
}
