// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package location

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimulatedService is a location.Service that walks randomly around a start
// coordinate. It backs development runs of the agent on machines without a
// location stack, and doubles as a reference implementation of the Service
// contract (idempotent scheduled registration, cached last position).
type SimulatedService struct {
	mu        sync.Mutex
	rng       *rand.Rand
	lat, lng  float64
	last      *Position
	scheduled map[string]chan struct{}
	grantFg   bool
	grantBg   bool
}

// NewSimulatedService creates a simulator centered on the given coordinate
// with both permissions granted.
func NewSimulatedService(lat, lng float64) *SimulatedService {
	return &SimulatedService{
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		lat:       lat,
		lng:       lng,
		scheduled: make(map[string]chan struct{}),
		grantFg:   true,
		grantBg:   true,
	}
}

// DenyBackground makes background permission requests fail, for exercising
// the orchestrator's permission handling.
func (s *SimulatedService) DenyBackground() {
	s.mu.Lock()
	s.grantBg = false
	s.mu.Unlock()
}

// RequestForegroundPermission implements Service.
func (s *SimulatedService) RequestForegroundPermission(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantFg, nil
}

// RequestBackgroundPermission implements Service.
func (s *SimulatedService) RequestBackgroundPermission(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantBg, nil
}

// CurrentPosition implements Service. The simulated fix is immediate.
func (s *SimulatedService) CurrentPosition(ctx context.Context, tier AccuracyTier) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return s.step(tier), nil
}

// LastKnownPosition implements Service.
func (s *SimulatedService) LastKnownPosition(_ context.Context) (Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Position{}, false, nil
	}
	return *s.last, true, nil
}

// StartScheduledUpdates implements Service. Re-registering a running task
// keeps the existing one.
func (s *SimulatedService) StartScheduledUpdates(taskID string, opts ScheduleOptions, deliver func(Position)) error {
	s.mu.Lock()
	if _, running := s.scheduled[taskID]; running {
		s.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	s.scheduled[taskID] = stop
	s.mu.Unlock()

	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				deliver(s.step(opts.Tier))
			}
		}
	}()
	return nil
}

// StopScheduledUpdates implements Service.
func (s *SimulatedService) StopScheduledUpdates(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, running := s.scheduled[taskID]; running {
		close(stop)
		delete(s.scheduled, taskID)
	}
	return nil
}

// ScheduledUpdatesRunning implements Service.
func (s *SimulatedService) ScheduledUpdatesRunning(taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.scheduled[taskID]
	return running, nil
}

// WatchPosition implements Service.
func (s *SimulatedService) WatchPosition(opts WatchOptions, onUpdate func(Position), _ func(error)) (Subscription, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onUpdate(s.step(opts.Tier))
			}
		}
	}()
	return &simSubscription{stop: stop}, nil
}

// step advances the random walk and returns the new fix.
func (s *SimulatedService) step(tier AccuracyTier) Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Roughly a few meters per step.
	s.lat += (s.rng.Float64() - 0.5) * 0.0001
	s.lng += (s.rng.Float64() - 0.5) * 0.0001

	accuracy := 5.0 + s.rng.Float64()*15
	if tier == AccuracyBalanced {
		accuracy = 30.0 + s.rng.Float64()*70
	}
	altitude := 20.0 + s.rng.Float64()*5

	pos := Position{
		Latitude:   s.lat,
		Longitude:  s.lng,
		Accuracy:   &accuracy,
		Altitude:   &altitude,
		CapturedAt: time.Now(),
	}
	s.last = &pos
	return pos
}

type simSubscription struct {
	once sync.Once
	stop chan struct{}
}

func (s *simSubscription) Stop() {
	s.once.Do(func() { close(s.stop) })
}
