// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package power holds the device-power concerns of the agent: the wake-lock
// manager keeping the CPU alive while tracking, and the battery optimization
// policy that throttles acquisition when the battery runs low.
package power

import (
	"sync"

	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

// LockStrength selects how much of the device a wake lock keeps awake.
type LockStrength int

const (
	// LockPartial keeps the CPU running; the screen may sleep.
	// Steady-state tracking uses this.
	LockPartial LockStrength = iota

	// LockFull keeps CPU and screen awake. Reserved for critical moments.
	LockFull
)

func (s LockStrength) String() string {
	if s == LockFull {
		return "full"
	}
	return "partial"
}

// Holder is the platform hook that actually pins the device awake.
type Holder interface {
	Acquire(strength LockStrength) error
	Release() error
}

// NoopHolder satisfies Holder on platforms without suspend inhibition.
type NoopHolder struct{}

func (NoopHolder) Acquire(LockStrength) error { return nil }
func (NoopHolder) Release() error             { return nil }

// WakeLock manages a single wake-lock token. Acquire and Release are
// idempotent: a second Acquire does not leak a token, a Release when not held
// is a no-op. The held flag is mirrored into the store so a restarted process
// reports a sane default before its next Acquire.
type WakeLock struct {
	mu       sync.Mutex
	holder   Holder
	st       *store.Store
	held     bool
	strength LockStrength
}

// NewWakeLock creates a wake-lock manager over the given platform holder.
// A held flag left over from a previous run is reset: the platform released
// the lock when that process died, so the record must not claim otherwise.
func NewWakeLock(holder Holder, st *store.Store) *WakeLock {
	w := &WakeLock{holder: holder, st: st}
	if st != nil && st.GetBool(store.KeyWakeLockHeld, false) {
		logging.Warn().Msg("wake lock flag left over from previous run, resetting")
		w.persist(false)
	}
	metrics.SetBool(metrics.WakeLockHeld, false)
	return w
}

// Acquire obtains the wake lock at the given strength. Acquiring while held
// at the same strength is a no-op; a different strength swaps the lock.
func (w *WakeLock) Acquire(strength LockStrength) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.held {
		if w.strength == strength {
			return nil
		}
		if err := w.holder.Release(); err != nil {
			return err
		}
		w.held = false
	}

	if err := w.holder.Acquire(strength); err != nil {
		return err
	}
	w.held = true
	w.strength = strength
	w.persist(true)
	metrics.SetBool(metrics.WakeLockHeld, true)
	logging.Debug().Str("strength", strength.String()).Msg("wake lock acquired")
	return nil
}

// Release returns the wake lock. Releasing when not held is a no-op.
func (w *WakeLock) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.held {
		return nil
	}
	if err := w.holder.Release(); err != nil {
		return err
	}
	w.held = false
	w.persist(false)
	metrics.SetBool(metrics.WakeLockHeld, false)
	logging.Debug().Msg("wake lock released")
	return nil
}

// IsHeld reports whether the lock is currently held.
func (w *WakeLock) IsHeld() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

// Strength returns the strength of the held lock. Meaningless when not held.
func (w *WakeLock) Strength() LockStrength {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.strength
}

func (w *WakeLock) persist(held bool) {
	if w.st == nil {
		return
	}
	if err := w.st.SetBool(store.KeyWakeLockHeld, held); err != nil {
		logging.Warn().Err(err).Msg("failed to persist wake lock state")
	}
}
