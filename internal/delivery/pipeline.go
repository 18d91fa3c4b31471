// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
)

// Outcome classifies what the pipeline did with a sample. Every outcome is a
// success from the producing channel's point of view; acquisition never
// fails because delivery did.
type Outcome string

const (
	// OutcomeSent means the sample was transmitted.
	OutcomeSent Outcome = "sent"

	// OutcomeLowAccuracy means the fix was too imprecise and was dropped.
	OutcomeLowAccuracy Outcome = "low_accuracy"

	// OutcomeRateLimited means the sample arrived inside the minimum
	// inter-send interval for its source and was skipped, not queued —
	// it is redundant, not failed.
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeQueued means the transmit failed and the sample now waits in
	// the sync queue.
	OutcomeQueued Outcome = "queued"
)

// Enqueuer hands a failed sample to the sync queue.
type Enqueuer interface {
	Enqueue(sample location.Sample) error
}

// PipelineConfig parameterizes the delivery pipeline.
type PipelineConfig struct {
	// MaxAccuracyMeters rejects fixes with worse reported accuracy. The
	// default tolerates indoor and network-derived fixes but filters the
	// wildly bad ones.
	MaxAccuracyMeters float64

	// MinSendInterval is the per-source floor between transmits. One value
	// for the whole pipeline, switched by battery mode through
	// SetMinSendInterval.
	MinSendInterval time.Duration
}

// lastSent records the most recent successful transmit, in memory only.
// It feeds distance-moved diagnostics and never gates whether the next
// sample is sent.
type lastSent struct {
	lat, lng float64
	accuracy *float64
	at       time.Time
}

// Pipeline validates, rate-limits, and transmits location samples, handing
// failures to the sync queue so an unreliable network can never stall the
// acquisition channels.
type Pipeline struct {
	cfg    PipelineConfig
	sender Sender
	q      Enqueuer

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	last     *lastSent
}

// Sender is the transmit step; the Transmitter satisfies it.
type Sender interface {
	Send(ctx context.Context, sample location.Sample) error
}

// NewPipeline creates a delivery pipeline over the given transmit step and
// sync queue.
func NewPipeline(cfg PipelineConfig, sender Sender, q Enqueuer) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		sender:   sender,
		q:        q,
		limiters: make(map[string]*rate.Limiter),
		interval: cfg.MinSendInterval,
	}
}

// Deliver runs one sample through the pipeline. The returned error is only
// ever an enqueue failure (a store write error); filtered, skipped, and
// queued samples all resolve normally.
func (p *Pipeline) Deliver(ctx context.Context, sample location.Sample) (Outcome, error) {
	if sample.Accuracy != nil && *sample.Accuracy > p.cfg.MaxAccuracyMeters {
		metrics.DeliveryOutcomes.WithLabelValues(string(OutcomeLowAccuracy)).Inc()
		logging.Debug().
			Float64("accuracy", *sample.Accuracy).
			Float64("max", p.cfg.MaxAccuracyMeters).
			Str("source", sample.Source).
			Msg("sample rejected for accuracy")
		return OutcomeLowAccuracy, nil
	}

	if !p.limiter(sample.Source).Allow() {
		metrics.DeliveryOutcomes.WithLabelValues(string(OutcomeRateLimited)).Inc()
		return OutcomeRateLimited, nil
	}

	if err := p.sender.Send(ctx, sample); err != nil {
		metrics.DeliveryOutcomes.WithLabelValues(string(OutcomeQueued)).Inc()
		logging.Debug().Err(err).Str("source", sample.Source).Msg("transmit failed, queueing sample")
		if qErr := p.q.Enqueue(sample); qErr != nil {
			return OutcomeQueued, qErr
		}
		return OutcomeQueued, nil
	}

	p.recordSent(sample)
	metrics.DeliveryOutcomes.WithLabelValues(string(OutcomeSent)).Inc()
	return OutcomeSent, nil
}

// SetMinSendInterval switches the rate-limit floor, e.g. when battery-saving
// mode toggles. Existing per-source limiters are rebuilt lazily.
func (p *Pipeline) SetMinSendInterval(interval time.Duration) {
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if interval == p.interval {
		return
	}
	p.interval = interval
	p.limiters = make(map[string]*rate.Limiter)
}

// Reset clears rate-limit and last-sent state. Called when tracking stops so
// a new session starts clean.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters = make(map[string]*rate.Limiter)
	p.last = nil
}

// LastSent returns the coordinates and time of the most recent successful
// transmit, if any.
func (p *Pipeline) LastSent() (lat, lng float64, at time.Time, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return 0, 0, time.Time{}, false
	}
	return p.last.lat, p.last.lng, p.last.at, true
}

func (p *Pipeline) limiter(source string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[source] = lim
	}
	return lim
}

func (p *Pipeline) recordSent(sample location.Sample) {
	p.mu.Lock()
	prev := p.last
	p.last = &lastSent{
		lat:      sample.Latitude,
		lng:      sample.Longitude,
		accuracy: sample.Accuracy,
		at:       time.Now(),
	}
	p.mu.Unlock()

	if prev != nil {
		moved := location.DistanceMeters(prev.lat, prev.lng, sample.Latitude, sample.Longitude)
		logging.Debug().
			Float64("moved_m", moved).
			Str("source", sample.Source).
			Msg("location update sent")
	}
}
