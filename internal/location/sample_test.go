// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package location

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 9.93, 76.26, 9.93, 76.26, 0, 0.01},
		// Kochi to Thiruvananthapuram, roughly 200 km.
		{"kochi to tvm", 9.9312, 76.2673, 8.5241, 76.9366, 172000, 5000},
		// One degree of latitude is about 111 km.
		{"one degree latitude", 0, 0, 1, 0, 111195, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMeters() = %v, want %v +/- %v", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestSampleFrom(t *testing.T) {
	acc := 8.0
	captured := time.Now()
	pos := Position{Latitude: 9.93, Longitude: 76.26, Accuracy: &acc, CapturedAt: captured}

	sample := SampleFrom(pos, "user@example.com", "watcher")
	if sample.Latitude != 9.93 || sample.Longitude != 76.26 {
		t.Errorf("coordinates not carried over: %+v", sample)
	}
	if sample.UserEmail != "user@example.com" || sample.Source != "watcher" {
		t.Errorf("stamping failed: %+v", sample)
	}
	if sample.Accuracy != &acc {
		t.Error("accuracy pointer not carried over")
	}
	if !sample.CapturedAt.Equal(captured) {
		t.Error("capture time not carried over")
	}
}

func TestSimulatedServiceProducesFixes(t *testing.T) {
	svc := NewSimulatedService(9.93, 76.26)

	pos, err := svc.CurrentPosition(context.Background(), AccuracyHigh)
	if err != nil {
		t.Fatalf("current position: %v", err)
	}
	if pos.CapturedAt.IsZero() {
		t.Error("expected capture time set")
	}
	if pos.Accuracy == nil || *pos.Accuracy > 20 {
		t.Errorf("expected high-tier accuracy <= 20m, got %v", pos.Accuracy)
	}

	cached, ok, err := svc.LastKnownPosition(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected cached fix after a request, ok=%v err=%v", ok, err)
	}
	if cached.Latitude == 0 && cached.Longitude == 0 {
		t.Error("expected cached coordinates")
	}
}

func TestSimulatedScheduledUpdatesIdempotent(t *testing.T) {
	svc := NewSimulatedService(9.93, 76.26)

	deliver := func(Position) {}
	opts := ScheduleOptions{Tier: AccuracyHigh, Interval: time.Hour}

	if err := svc.StartScheduledUpdates("task", opts, deliver); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.StartScheduledUpdates("task", opts, deliver); err != nil {
		t.Fatalf("re-register must be a no-op, got %v", err)
	}

	running, err := svc.ScheduledUpdatesRunning("task")
	if err != nil || !running {
		t.Errorf("expected task running, ok=%v err=%v", running, err)
	}

	if err := svc.StopScheduledUpdates("task"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	running, _ = svc.ScheduledUpdatesRunning("task")
	if running {
		t.Error("expected task stopped")
	}

	// Stopping again is a no-op.
	if err := svc.StopScheduledUpdates("task"); err != nil {
		t.Errorf("double stop: %v", err)
	}
}
