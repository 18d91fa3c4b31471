// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package tracking

import (
	"context"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/power"
)

// HeartbeatService is the self-heal loop, run under the supervisor tree. On
// every tick it verifies that tracking which should be running actually is —
// covering both a process restart and the platform silently dropping the
// scheduled task — and restarts it when not.
//
// The heartbeat itself costs battery, so it is suspended while battery-saving
// mode is active; the remaining channels carry the session until saving mode
// ends.
type HeartbeatService struct {
	orch     *Orchestrator
	policy   *power.Policy
	interval time.Duration
}

// NewHeartbeatService creates the heartbeat loop service.
func NewHeartbeatService(orch *Orchestrator, policy *power.Policy, interval time.Duration) *HeartbeatService {
	return &HeartbeatService{orch: orch, policy: policy, interval: interval}
}

// Serve implements suture.Service. It blocks until the context is canceled.
func (s *HeartbeatService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.interval).Msg("tracking heartbeat started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *HeartbeatService) tick(ctx context.Context) {
	status, err := s.policy.Status()
	if err == nil && !power.OptimizedSettings(status).HeartbeatEnabled {
		logging.Debug().Msg("heartbeat suspended in battery-saving mode")
		return
	}

	if s.orch.EnsureRunning(ctx) {
		logging.Info().Msg("heartbeat restarted tracking")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *HeartbeatService) String() string {
	return "tracking-heartbeat"
}
