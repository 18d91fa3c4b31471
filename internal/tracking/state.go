// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package tracking implements the background location tracking orchestrator:
// an explicit state machine driving three redundant acquisition channels, a
// heartbeat that detects the platform silently dropping the scheduled task,
// and the glue feeding every acquired fix into the delivery pipeline.
package tracking

import "fmt"

// State is the orchestrator's lifecycle state. It is persisted so a restarted
// process knows whether tracking should be resumed.
type State string

const (
	// StateInactive means tracking is not running and is not meant to be.
	StateInactive State = "inactive"

	// StateActive means tracking is running (or should be, per the
	// persisted intent, even if the process restarted meanwhile).
	StateActive State = "active"

	// StateFailed means the platform scheduling API errored during start.
	StateFailed State = "failed"
)

// transition validates a state change. Keeping every mutation behind this
// single function makes illegal states unrepresentable rather than scattered
// across boolean flags.
func transition(from, to State) error {
	switch {
	case from == to:
		return nil
	case from == StateInactive && to == StateActive:
		return nil
	case from == StateActive && to == StateInactive:
		return nil
	case from == StateActive && to == StateFailed:
		return nil
	case from == StateFailed && to == StateInactive:
		return nil
	case from == StateFailed && to == StateActive:
		// A retry after a platform failure, e.g. on app resume.
		return nil
	case from == StateInactive && to == StateFailed:
		// Start failed before ever becoming active.
		return nil
	default:
		return fmt.Errorf("invalid tracking state transition %s -> %s", from, to)
	}
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateActive:
		return 1
	case StateFailed:
		return 2
	default:
		return 0
	}
}
