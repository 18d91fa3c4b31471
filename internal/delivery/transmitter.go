// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package delivery moves accepted location samples to the SafeNet backend:
// the pipeline filters and rate-limits, the transmitter performs the HTTP
// call behind a circuit breaker, and failures land in the sync queue.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
)

// updateLocationPath is the backend endpoint receiving location updates.
const updateLocationPath = "/user/update-location"

// updatePayload is the wire body of a location update. The backend treats
// each update independently (last-write-wins), so out-of-order arrival
// between acquisition channels is tolerated by design.
type updatePayload struct {
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	Accuracy           *float64 `json:"accuracy,omitempty"`
	Altitude           *float64 `json:"altitude,omitempty"`
	Email              string   `json:"email"`
	IsBackgroundUpdate bool     `json:"isBackgroundUpdate"`
	Timestamp          int64    `json:"timestamp"`
}

// TransmitterConfig configures the remote API client.
type TransmitterConfig struct {
	// BaseURL is the API root, e.g. https://api.safenet.example.
	BaseURL string

	// Timeout bounds a single request.
	Timeout time.Duration
}

// Transmitter posts location updates to the backend. A circuit breaker keeps
// failures cheap during outages: once open, sends fail immediately and the
// samples go straight to the sync queue instead of waiting out HTTP timeouts.
type Transmitter struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[struct{}]
}

// NewTransmitter creates the remote API client. The breaker opens after five
// consecutive failures and probes again after thirty seconds.
func NewTransmitter(cfg TransmitterConfig) *Transmitter {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "location-api",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("circuit breaker state change")
			metrics.BreakerState.Set(breakerStateFloat(to))
		},
	})

	return &Transmitter{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		cb:      cb,
	}
}

// Send posts one sample to the location-update endpoint. Any non-2xx status,
// network error, or open breaker is a delivery failure. Satisfies
// queue.Sender so queued entries retry through the same path.
func (t *Transmitter) Send(ctx context.Context, sample location.Sample) error {
	start := time.Now()
	defer func() {
		metrics.TransmitDuration.Observe(time.Since(start).Seconds())
	}()

	_, err := t.cb.Execute(func() (struct{}, error) {
		return struct{}{}, t.post(ctx, sample)
	})
	return err
}

func (t *Transmitter) post(ctx context.Context, sample location.Sample) error {
	body, err := json.Marshal(updatePayload{
		Latitude:           sample.Latitude,
		Longitude:          sample.Longitude,
		Accuracy:           sample.Accuracy,
		Altitude:           sample.Altitude,
		Email:              sample.UserEmail,
		IsBackgroundUpdate: true,
		Timestamp:          sample.CapturedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode location update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+updateLocationPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build location update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post location update: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("location update rejected: status %d", resp.StatusCode)
	}
	return nil
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
