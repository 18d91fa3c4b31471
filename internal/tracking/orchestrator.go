// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package tracking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/delivery"
	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
	"github.com/jahanasherin1/SafeNet-sub000/internal/power"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

// Deliverer is the slice of the delivery pipeline the orchestrator needs.
type Deliverer interface {
	Deliver(ctx context.Context, sample location.Sample) (delivery.Outcome, error)
	SetMinSendInterval(interval time.Duration)
	Reset()
}

// Config parameterizes the orchestrator. Values come from the tracking and
// delivery sections of the agent configuration.
type Config struct {
	HeartbeatInterval  time.Duration
	PollInterval       time.Duration
	PollIntervalSaving time.Duration
	PositionTimeout    time.Duration
	StaleSampleMaxAge  time.Duration

	MinSendInterval       time.Duration
	MinSendIntervalSaving time.Duration
}

// Orchestrator owns the three acquisition channels and the tracking state
// machine. All runtime state lives on the struct — one orchestrator per
// session, constructed at login, torn down at logout — so tests can run
// instances side by side without cross-talk.
type Orchestrator struct {
	cfg      Config
	platform location.Service
	pipeline Deliverer
	lock     *power.WakeLock
	policy   *power.Policy
	st       *store.Store

	// emailFn resolves the owning user for outgoing samples from the
	// persisted session, so a heartbeat restart after a process crash
	// still stamps samples correctly.
	emailFn func() string

	mu           sync.Mutex
	state        State
	channels     []Channel
	runCancel    context.CancelFunc
	sessionStart time.Time
}

// New creates an orchestrator. The in-memory state always starts inactive;
// the persisted intent (ShouldBeTracking) is what survives restarts, and the
// session controller reconciles the two on resume.
func New(cfg Config, platform location.Service, pipeline Deliverer, lock *power.WakeLock, policy *power.Policy, st *store.Store, emailFn func() string) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		platform: platform,
		pipeline: pipeline,
		lock:     lock,
		policy:   policy,
		st:       st,
		emailFn:  emailFn,
		state:    StateInactive,
	}
}

// Start begins tracking. It requires both foreground and background location
// permission: this system must keep reporting while minimized, so a
// foreground-only grant is a refusal. A refusal returns (false, nil) and the
// state stays inactive — the UI re-requests permission and calls Start
// again. A platform scheduling error moves the state to failed.
func (o *Orchestrator) Start(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateActive {
		return true, nil
	}

	granted, err := o.platform.RequestForegroundPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request foreground permission: %w", err)
	}
	if !granted {
		logging.Warn().Msg("foreground location permission refused, tracking not started")
		return false, nil
	}

	granted, err = o.platform.RequestBackgroundPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request background permission: %w", err)
	}
	if !granted {
		logging.Warn().Msg("background location permission refused, tracking not started")
		return false, nil
	}

	status, err := o.policy.Status()
	if err != nil {
		// No battery reading is not a reason to skip tracking; assume
		// normal mode.
		logging.Warn().Err(err).Msg("battery status unavailable, using normal mode")
		status = power.BatteryStatus{Level: 100}
	}
	settings := power.OptimizedSettings(status)

	minSend := o.cfg.MinSendInterval
	pollInterval := o.cfg.PollInterval
	if status.SavingActive {
		minSend = o.cfg.MinSendIntervalSaving
		pollInterval = o.cfg.PollIntervalSaving
	}
	o.pipeline.SetMinSendInterval(minSend)

	if err := o.lock.Acquire(power.LockPartial); err != nil {
		logging.Warn().Err(err).Msg("wake lock unavailable, tracking continues without it")
	}

	o.sessionStart = time.Now()
	// Resuming a persisted session keeps the original start time, so the
	// stale-fix cutoff stays anchored at the login rather than the restart
	// and a cached fix from the interim is still accepted.
	if o.ShouldBeTracking() {
		var persisted time.Time
		if found, err := o.st.GetJSON(store.KeyTrackingStartedAt, &persisted); err == nil && found && !persisted.IsZero() {
			o.sessionStart = persisted
		}
	}
	runCtx, cancel := context.WithCancel(context.Background())
	o.runCancel = cancel

	scheduled := newScheduledChannel(o.platform, location.ScheduleOptions{
		Tier:     settings.Tier,
		Interval: settings.LocationInterval,
	}, o.sessionStart, o.cfg.StaleSampleMaxAge, o.onSample(runCtx))

	if err := scheduled.Start(runCtx); err != nil {
		cancel()
		o.runCancel = nil
		if relErr := o.lock.Release(); relErr != nil {
			logging.Warn().Err(relErr).Msg("wake lock release failed during aborted start")
		}
		o.setStateLocked(StateFailed)
		return false, fmt.Errorf("register scheduled updates: %w", err)
	}
	o.channels = []Channel{scheduled}

	if settings.WatcherEnabled {
		watcher := newWatcherChannel(o.platform, location.WatchOptions{
			Tier:     settings.Tier,
			Interval: settings.ActivityInterval,
		}, o.onSample(runCtx))
		if err := watcher.Start(runCtx); err != nil {
			// The scheduled task is registered; losing the watcher
			// degrades latency, not correctness.
			logging.Warn().Err(err).Msg("watcher channel failed to start")
		} else {
			o.channels = append(o.channels, watcher)
		}
	}

	if settings.PollingEnabled {
		poller := newPollerChannel(o.platform, pollerConfig{
			Interval:        pollInterval,
			PositionTimeout: o.cfg.PositionTimeout,
			Tier:            settings.Tier,
		}, o.onSample(runCtx))
		if err := poller.Start(runCtx); err != nil {
			logging.Warn().Err(err).Msg("poller channel failed to start")
		} else {
			o.channels = append(o.channels, poller)
		}
	}

	o.setStateLocked(StateActive)
	if err := o.st.SetJSON(store.KeyTrackingStartedAt, o.sessionStart); err != nil {
		logging.Warn().Err(err).Msg("failed to persist tracking start time")
	}

	logging.Info().
		Int("channels", len(o.channels)).
		Bool("battery_saving", status.SavingActive).
		Msg("tracking started")
	return true, nil
}

// Stop ends tracking: cancels every channel, releases the wake lock, and
// clears the pipeline's rate-limit state. Safe to call when tracking never
// started, and after a partial start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked(true)
}

// stopLocked tears tracking down. When persistIntent is false the persisted
// "should be tracking" flag is left alone so a heartbeat restart can follow.
func (o *Orchestrator) stopLocked(persistIntent bool) {
	if o.runCancel != nil {
		o.runCancel()
		o.runCancel = nil
	}
	for _, ch := range o.channels {
		ch.Stop()
	}
	o.channels = nil
	o.pipeline.Reset()

	if err := o.lock.Release(); err != nil {
		logging.Warn().Err(err).Msg("wake lock release failed")
	}

	if persistIntent {
		o.setStateLocked(StateInactive)
		if err := o.st.Remove(store.KeyTrackingStartedAt); err != nil {
			logging.Warn().Err(err).Msg("failed to clear tracking start time")
		}
	} else {
		o.setMemoryStateLocked(StateInactive)
	}
	logging.Info().Msg("tracking stopped")
}

// State returns the orchestrator's actual in-memory state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ShouldBeTracking returns the persisted intent, which survives restarts.
func (o *Orchestrator) ShouldBeTracking() bool {
	var persisted State
	found, err := o.st.GetJSON(store.KeyTrackingState, &persisted)
	if err != nil || !found {
		return false
	}
	return persisted == StateActive
}

// EnsureRunning reconciles the actual state with the persisted intent:
// if tracking should be running but is not — the process restarted, or the
// platform dropped the scheduled task — it is restarted. Returns whether a
// restart happened.
func (o *Orchestrator) EnsureRunning(ctx context.Context) bool {
	if !o.ShouldBeTracking() {
		return false
	}

	healthy := o.State() == StateActive
	if healthy {
		running, err := o.platform.ScheduledUpdatesRunning(TaskID)
		if err != nil {
			logging.Warn().Err(err).Msg("scheduled task status check failed")
			return false
		}
		healthy = running
	}
	if healthy {
		return false
	}

	logging.Warn().Msg("tracking should be active but is not, restarting")
	o.mu.Lock()
	o.stopLocked(false)
	o.mu.Unlock()

	started, err := o.Start(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("tracking restart failed")
		return false
	}
	if started {
		metrics.HeartbeatRecoveries.Inc()
	}
	return started
}

// SessionStart returns when the current tracking session began.
func (o *Orchestrator) SessionStart() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionStart
}

// StatusString renders a human-readable diagnostic of the tracking state.
func (o *Orchestrator) StatusString() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateActive:
		names := make([]string, 0, len(o.channels))
		for _, ch := range o.channels {
			names = append(names, ch.Name())
		}
		return fmt.Sprintf("tracking active (channels: %s; since %s)",
			strings.Join(names, ", "), o.sessionStart.Format(time.RFC3339))
	case StateFailed:
		return "tracking failed to start; will retry on app resume"
	default:
		return "tracking inactive"
	}
}

// onSample builds the emit callback for a channel. Delivery runs in its own
// goroutine: a slow or failing transmit must never delay the channel's next
// fix.
func (o *Orchestrator) onSample(runCtx context.Context) emitFunc {
	return func(pos location.Position, channel string) {
		sample := location.SampleFrom(pos, o.emailFn(), channel)
		go func() {
			if _, err := o.pipeline.Deliver(runCtx, sample); err != nil {
				logging.Error().Err(err).Str("channel", channel).Msg("sample could not be queued")
			}
		}()
	}
}

// setStateLocked transitions the in-memory state and mirrors it to the store
// so the two can never drift apart.
func (o *Orchestrator) setStateLocked(to State) {
	if err := transition(o.state, to); err != nil {
		// Transitions are all driven by this package; an invalid one is
		// a programming error worth hearing about, not worth crashing a
		// safety tracker over.
		logging.Error().Err(err).Msg("rejected tracking state transition")
		return
	}
	o.state = to
	metrics.TrackingState.Set(stateGaugeValue(to))
	if err := o.st.SetJSON(store.KeyTrackingState, to); err != nil {
		logging.Warn().Err(err).Msg("failed to persist tracking state")
	}
}

// setMemoryStateLocked updates only the in-memory state, preserving the
// persisted intent across a self-heal restart.
func (o *Orchestrator) setMemoryStateLocked(to State) {
	if err := transition(o.state, to); err != nil {
		logging.Error().Err(err).Msg("rejected tracking state transition")
		return
	}
	o.state = to
	metrics.TrackingState.Set(stateGaugeValue(to))
}
