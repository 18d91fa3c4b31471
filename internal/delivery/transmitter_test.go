// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
)

func TestSendPostsLocationUpdate(t *testing.T) {
	var got updatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != updateLocationPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTransmitter(TransmitterConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	captured := time.Now()
	acc := 12.5
	err := tr.Send(context.Background(), location.Sample{
		Latitude:   9.93,
		Longitude:  76.26,
		Accuracy:   &acc,
		CapturedAt: captured,
		UserEmail:  "user@example.com",
		Source:     "watcher",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.Latitude != 9.93 || got.Longitude != 76.26 {
		t.Errorf("unexpected coordinates: %+v", got)
	}
	if got.Email != "user@example.com" {
		t.Errorf("unexpected email %q", got.Email)
	}
	if !got.IsBackgroundUpdate {
		t.Error("expected background-update flag set")
	}
	if got.Timestamp != captured.UnixMilli() {
		t.Errorf("expected millisecond timestamp %d, got %d", captured.UnixMilli(), got.Timestamp)
	}
	if got.Accuracy == nil || *got.Accuracy != 12.5 {
		t.Errorf("expected accuracy 12.5, got %v", got.Accuracy)
	}
}

func TestSendRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewTransmitter(TransmitterConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err := tr.Send(context.Background(), location.Sample{CapturedAt: time.Now()}); err == nil {
		t.Fatal("expected non-2xx to be a delivery failure")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewTransmitter(TransmitterConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	sample := location.Sample{CapturedAt: time.Now()}

	for i := 0; i < 5; i++ {
		if err := tr.Send(context.Background(), sample); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	// The breaker is open now: further sends fail fast without reaching the
	// backend.
	before := calls.Load()
	err := tr.Send(context.Background(), sample)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open-breaker error, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open breaker must not hit the backend")
	}
}
