// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package tracking

import (
	"context"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
)

// Channel is one acquisition path producing location fixes. The orchestrator
// runs several concurrently: the platform-scheduled task, the continuous
// watcher, and the polling fallback. They deliberately overlap — duplicates
// are cheap (the pipeline's rate limiter suppresses them) and redundancy is
// what keeps tracking alive when one path silently dies.
type Channel interface {
	// Name identifies the channel in logs, metrics, and rate-limit keys.
	Name() string

	// Start begins producing fixes through the emit callback the channel
	// was constructed with. Emit callbacks must not block.
	Start(ctx context.Context) error

	// Stop ends production. Idempotent, and safe when Start never ran.
	Stop()
}

// emitFunc receives fixes from a channel, tagged with the channel name.
type emitFunc func(pos location.Position, channel string)
