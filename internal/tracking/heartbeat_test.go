// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/power"
)

func TestHeartbeatTickRestartsDroppedTracking(t *testing.T) {
	f := newOrchFixture(t, 90)

	if _, err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.orch.Stop()

	policy := power.NewPolicy(f.st, power.FixedReader{Percent: 90}, 20)
	hb := NewHeartbeatService(f.orch, policy, 30*time.Second)

	f.platform.dropTask()
	hb.tick(context.Background())

	if running, _ := f.platform.ScheduledUpdatesRunning(TaskID); !running {
		t.Error("expected heartbeat tick to re-register the scheduled task")
	}
	if f.orch.State() != StateActive {
		t.Errorf("expected active state after heartbeat repair, got %s", f.orch.State())
	}
}

func TestHeartbeatTickSuspendedInSavingMode(t *testing.T) {
	f := newOrchFixture(t, 90)

	if _, err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.orch.Stop()

	// A low battery reading puts the policy in saving mode, which suspends
	// the heartbeat; the dropped task stays dropped.
	lowPolicy := power.NewPolicy(f.st, power.FixedReader{Percent: 10}, 20)
	hb := NewHeartbeatService(f.orch, lowPolicy, 30*time.Second)

	f.platform.dropTask()
	hb.tick(context.Background())

	if running, _ := f.platform.ScheduledUpdatesRunning(TaskID); running {
		t.Error("expected heartbeat suspended in saving mode")
	}
}

func TestHeartbeatServeStopsOnCancel(t *testing.T) {
	f := newOrchFixture(t, 90)
	policy := power.NewPolicy(f.st, power.FixedReader{Percent: 90}, 20)
	hb := NewHeartbeatService(f.orch, policy, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hb.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop on cancel")
	}
}
