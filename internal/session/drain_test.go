// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/queue"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

type countingSender struct {
	sends atomic.Int64
}

func (s *countingSender) Send(context.Context, location.Sample) error {
	s.sends.Add(1)
	return nil
}

func seedQueue(t *testing.T, st *store.Store, sender queue.Sender, n int) *queue.Queue {
	t.Helper()
	q := queue.New(st, queue.DefaultConfig(), sender)
	for i := 0; i < n; i++ {
		if err := q.Enqueue(location.Sample{Latitude: float64(i), CapturedAt: time.Now()}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	return q
}

func TestDrainTickDeliversWithActiveSession(t *testing.T) {
	st := openTestStore(t)
	sender := &countingSender{}
	q := seedQueue(t, st, sender, 3)

	ctrl := NewController(st, &fakeTracker{startResult: true}, nil)
	if _, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("login: %v", err)
	}

	svc := NewDrainService(ctrl, q, time.Minute)
	svc.tick(context.Background())

	if sender.sends.Load() != 3 {
		t.Errorf("expected 3 deliveries, got %d", sender.sends.Load())
	}
	if q.Len() != 0 {
		t.Errorf("expected queue drained, got %d", q.Len())
	}
}

func TestDrainTickDeferredWithoutSession(t *testing.T) {
	st := openTestStore(t)
	sender := &countingSender{}
	q := seedQueue(t, st, sender, 2)

	ctrl := NewController(st, &fakeTracker{}, nil)
	svc := NewDrainService(ctrl, q, time.Minute)
	svc.tick(context.Background())

	if sender.sends.Load() != 0 {
		t.Errorf("expected no deliveries without a session, got %d", sender.sends.Load())
	}
	if q.Len() != 2 {
		t.Errorf("expected queue untouched, got %d", q.Len())
	}
}

func TestDrainServeStopsOnCancel(t *testing.T) {
	st := openTestStore(t)
	q := seedQueue(t, st, &countingSender{}, 0)
	svc := NewDrainService(NewController(st, &fakeTracker{}, nil), q, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("drain loop did not stop on cancel")
	}
}
