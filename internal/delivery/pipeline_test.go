// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
)

type fakeSender struct {
	fail bool
	sent []location.Sample
}

func (s *fakeSender) Send(_ context.Context, sample location.Sample) error {
	if s.fail {
		return errors.New("network down")
	}
	s.sent = append(s.sent, sample)
	return nil
}

type fakeQueue struct {
	fail    bool
	entries []location.Sample
}

func (q *fakeQueue) Enqueue(sample location.Sample) error {
	if q.fail {
		return errors.New("store write failed")
	}
	q.entries = append(q.entries, sample)
	return nil
}

func accuracy(v float64) *float64 { return &v }

func testSample(source string, acc *float64) location.Sample {
	return location.Sample{
		Latitude:   9.93,
		Longitude:  76.26,
		Accuracy:   acc,
		CapturedAt: time.Now(),
		UserEmail:  "user@example.com",
		Source:     source,
	}
}

func TestDeliverRejectsLowAccuracy(t *testing.T) {
	sender := &fakeSender{}
	q := &fakeQueue{}
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Second}, sender, q)

	outcome, err := p.Deliver(context.Background(), testSample("watcher", accuracy(350)))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome != OutcomeLowAccuracy {
		t.Errorf("expected low_accuracy, got %s", outcome)
	}
	if len(sender.sent) != 0 {
		t.Error("rejected sample must not be transmitted")
	}
	if len(q.entries) != 0 {
		t.Error("rejected sample must not be queued")
	}
}

func TestDeliverAcceptsSampleWithoutAccuracy(t *testing.T) {
	sender := &fakeSender{}
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Second}, sender, &fakeQueue{})

	outcome, err := p.Deliver(context.Background(), testSample("watcher", nil))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome != OutcomeSent {
		t.Errorf("expected sent for accuracy-less sample, got %s", outcome)
	}
}

func TestDeliverRateLimitsPerSource(t *testing.T) {
	sender := &fakeSender{}
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Minute}, sender, &fakeQueue{})

	first, err := p.Deliver(context.Background(), testSample("watcher", accuracy(10)))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if first != OutcomeSent {
		t.Fatalf("expected first sample sent, got %s", first)
	}

	second, err := p.Deliver(context.Background(), testSample("watcher", accuracy(10)))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if second != OutcomeRateLimited {
		t.Errorf("expected second sample rate-limited, got %s", second)
	}

	// A different source has its own limiter.
	other, err := p.Deliver(context.Background(), testSample("poller", accuracy(10)))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if other != OutcomeSent {
		t.Errorf("expected other source to pass, got %s", other)
	}

	if len(sender.sent) != 2 {
		t.Errorf("expected 2 transmits, got %d", len(sender.sent))
	}
}

func TestDeliverQueuesOnTransmitFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	q := &fakeQueue{}
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Second}, sender, q)

	outcome, err := p.Deliver(context.Background(), testSample("scheduled", accuracy(10)))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome != OutcomeQueued {
		t.Errorf("expected queued, got %s", outcome)
	}
	if len(q.entries) != 1 {
		t.Fatalf("expected 1 queued sample, got %d", len(q.entries))
	}
}

func TestDeliverSurfacesEnqueueFailure(t *testing.T) {
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Second},
		&fakeSender{fail: true}, &fakeQueue{fail: true})

	outcome, err := p.Deliver(context.Background(), testSample("scheduled", accuracy(10)))
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	if outcome != OutcomeQueued {
		t.Errorf("expected queued outcome even on enqueue failure, got %s", outcome)
	}
}

func TestSetMinSendIntervalEnforcesFloor(t *testing.T) {
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Second}, &fakeSender{}, &fakeQueue{})

	p.SetMinSendInterval(time.Millisecond)
	p.mu.Lock()
	got := p.interval
	p.mu.Unlock()
	if got != 100*time.Millisecond {
		t.Errorf("expected 100ms floor, got %s", got)
	}
}

func TestResetClearsRateLimitState(t *testing.T) {
	sender := &fakeSender{}
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Minute}, sender, &fakeQueue{})

	if outcome, _ := p.Deliver(context.Background(), testSample("watcher", accuracy(10))); outcome != OutcomeSent {
		t.Fatalf("expected first sample sent, got %s", outcome)
	}
	p.Reset()

	// After reset the limiter starts fresh and the sample passes again.
	outcome, err := p.Deliver(context.Background(), testSample("watcher", accuracy(10)))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome != OutcomeSent {
		t.Errorf("expected sent after reset, got %s", outcome)
	}

	if _, _, _, ok := p.LastSent(); !ok {
		t.Error("expected last-sent to be recorded after post-reset send")
	}
}

func TestLastSentTracksMostRecentTransmit(t *testing.T) {
	p := NewPipeline(PipelineConfig{MaxAccuracyMeters: 200, MinSendInterval: time.Millisecond * 100}, &fakeSender{}, &fakeQueue{})

	if _, _, _, ok := p.LastSent(); ok {
		t.Fatal("expected no last-sent before any transmit")
	}

	if _, err := p.Deliver(context.Background(), testSample("watcher", accuracy(10))); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	lat, lng, at, ok := p.LastSent()
	if !ok {
		t.Fatal("expected last-sent after transmit")
	}
	if lat != 9.93 || lng != 76.26 {
		t.Errorf("unexpected last-sent coordinates: %v, %v", lat, lng)
	}
	if at.IsZero() {
		t.Error("expected last-sent timestamp")
	}
}
