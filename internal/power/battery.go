// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package power

import (
	"fmt"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

// Reader reports the current battery level in percent (0-100).
type Reader interface {
	Level() (int, error)
}

// FixedReader always reports the same level. Used by tests and by
// deployments without a readable battery.
type FixedReader struct {
	Percent int
}

func (r FixedReader) Level() (int, error) { return r.Percent, nil }

// BatteryStatus is the derived battery optimization state. It has no
// lifecycle of its own; Policy.Status computes it fresh on every call.
type BatteryStatus struct {
	// SavingEnabled is the persisted user preference.
	SavingEnabled bool `json:"savingEnabled"`

	// Level is the battery level the status was computed from.
	Level int `json:"level"`

	// LowBattery is true at or below the configured low threshold.
	LowBattery bool `json:"lowBattery"`

	// SavingActive is SavingEnabled OR LowBattery.
	SavingActive bool `json:"savingActive"`
}

// Settings are the concrete acquisition knobs derived from a BatteryStatus.
type Settings struct {
	LocationInterval time.Duration
	ActivityInterval time.Duration
	Tier             location.AccuracyTier
	WatcherEnabled   bool
	PollingEnabled   bool
	HeartbeatEnabled bool
}

// Policy derives battery optimization state from the persisted preference and
// the current battery reading.
//
// The auto-enable rule is one-way: once the level drops to the low threshold
// the saving preference is switched on and persisted, and it stays on until
// the user (or an explicit Disable call) turns it off — a recovered battery
// does not silently restore the power-hungry mode.
type Policy struct {
	st        *store.Store
	reader    Reader
	threshold int
}

// NewPolicy creates a battery optimization policy.
func NewPolicy(st *store.Store, reader Reader, lowThreshold int) *Policy {
	return &Policy{st: st, reader: reader, threshold: lowThreshold}
}

// Status computes the current battery optimization state, applying the
// auto-enable rule as a side effect when the battery is low.
func (p *Policy) Status() (BatteryStatus, error) {
	level, err := p.reader.Level()
	if err != nil {
		return BatteryStatus{}, fmt.Errorf("read battery level: %w", err)
	}

	enabled := p.st.GetBool(store.KeyBatterySaving, false)
	low := level <= p.threshold

	if low && !enabled {
		if err := p.st.SetBool(store.KeyBatterySaving, true); err != nil {
			return BatteryStatus{}, fmt.Errorf("persist battery saving preference: %w", err)
		}
		enabled = true
		logging.Info().Int("level", level).Msg("battery low, saving mode auto-enabled")
	}

	status := BatteryStatus{
		SavingEnabled: enabled,
		Level:         level,
		LowBattery:    low,
		SavingActive:  enabled || low,
	}

	metrics.BatteryLevel.Set(float64(level))
	metrics.SetBool(metrics.BatterySavingActive, status.SavingActive)
	return status, nil
}

// Enable persists the saving preference on.
func (p *Policy) Enable() error {
	return p.st.SetBool(store.KeyBatterySaving, true)
}

// Disable persists the saving preference off.
func (p *Policy) Disable() error {
	return p.st.SetBool(store.KeyBatterySaving, false)
}

// OptimizedSettings maps a status to acquisition knobs.
//
//	mode     location  activity  tier      watcher  polling  heartbeat
//	normal   5s        1s        high      yes      yes      yes
//	saving   30s       5s        balanced  yes      no       no
func OptimizedSettings(status BatteryStatus) Settings {
	if status.SavingActive {
		return Settings{
			LocationInterval: 30 * time.Second,
			ActivityInterval: 5 * time.Second,
			Tier:             location.AccuracyBalanced,
			WatcherEnabled:   true,
			PollingEnabled:   false,
			HeartbeatEnabled: false,
		}
	}
	return Settings{
		LocationInterval: 5 * time.Second,
		ActivityInterval: time.Second,
		Tier:             location.AccuracyHigh,
		WatcherEnabled:   true,
		PollingEnabled:   true,
		HeartbeatEnabled: true,
	}
}
