// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package session

import (
	"context"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/queue"
)

// DrainService periodically drains the sync queue while a session is active,
// run under the supervisor tree. The queue's own in-flight guard means a tick
// that lands while a previous drain is still running is skipped, not stacked.
type DrainService struct {
	ctrl     *Controller
	q        *queue.Queue
	interval time.Duration
}

// NewDrainService creates the periodic drain service.
func NewDrainService(ctrl *Controller, q *queue.Queue, interval time.Duration) *DrainService {
	return &DrainService{ctrl: ctrl, q: q, interval: interval}
}

// Serve implements suture.Service. It blocks until the context is canceled.
func (s *DrainService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.interval).Msg("sync queue drain loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *DrainService) tick(ctx context.Context) {
	if s.q.Len() == 0 {
		return
	}
	if !s.ctrl.Active() {
		// Queued samples wait for the next login; they carry their own
		// user email, so nothing is lost.
		logging.Debug().Int("queued", s.q.Len()).Msg("drain deferred, no active session")
		return
	}
	if _, err := s.q.Drain(ctx); err != nil {
		logging.Warn().Err(err).Msg("sync queue drain failed")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *DrainService) String() string {
	return "sync-queue-drain"
}
