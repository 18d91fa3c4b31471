// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package queue implements the durable sync queue: location samples whose
// delivery failed wait here, survive process restarts, and are retried in
// enqueue order until they succeed or exhaust their retry budget.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/metrics"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

// Entry wraps a sample with its retry bookkeeping. Entries are owned
// exclusively by the queue: created when a delivery fails, destroyed when a
// retry succeeds or the retry ceiling is exceeded.
type Entry struct {
	ID         string          `json:"id"`
	Sample     location.Sample `json:"sample"`
	Retries    int             `json:"retries"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Sender delivers one sample to the remote API. The delivery package's
// transmitter satisfies this.
type Sender interface {
	Send(ctx context.Context, sample location.Sample) error
}

// Config bounds the queue.
type Config struct {
	// MaxEntries is the queue bound; the oldest entry is evicted beyond it.
	MaxEntries int

	// MaxRetries is the per-entry attempt ceiling. An entry whose retry
	// count exceeds this is dropped; a stale location is not worth
	// redelivering forever.
	MaxRetries int
}

// DefaultConfig matches the mobile client's queue bounds.
func DefaultConfig() Config {
	return Config{MaxEntries: 20, MaxRetries: 5}
}

// Status is the queue summary exposed to the UI layer.
type Status struct {
	Count            int        `json:"count"`
	OldestEnqueuedAt *time.Time `json:"oldestEnqueuedAt,omitempty"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Delivered int
	Failed    int
	Dropped   int

	// Skipped is true when another drain was already in flight.
	Skipped bool
}

// Queue is the durable sync queue. The store record is the single source of
// truth; the in-memory slice mirrors it and every mutation is written back
// before the mutating call returns (read-modify-write under the mutex).
type Queue struct {
	mu      sync.Mutex
	st      *store.Store
	cfg     Config
	entries []Entry
	sender  Sender

	draining bool
}

// New loads the persisted queue from the store. A corrupt or missing record
// starts empty.
func New(st *store.Store, cfg Config, sender Sender) *Queue {
	q := &Queue{st: st, cfg: cfg, sender: sender}

	var entries []Entry
	found, err := st.GetJSON(store.KeySyncQueue, &entries)
	if err != nil {
		logging.Warn().Err(err).Msg("sync queue record unreadable, starting empty")
	} else if found {
		q.entries = entries
		logging.Info().Int("count", len(entries)).Msg("sync queue restored")
	}
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return q
}

// Enqueue appends a sample with a zero retry count, evicting the oldest
// entry when the bound is exceeded. The newest sample is never the one
// dropped.
func (q *Queue) Enqueue(sample location.Sample) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, Entry{
		ID:         uuid.New().String(),
		Sample:     sample,
		Retries:    0,
		EnqueuedAt: time.Now().UTC(),
	})

	for len(q.entries) > q.cfg.MaxEntries {
		evicted := q.entries[0]
		q.entries = q.entries[1:]
		metrics.QueueEvictions.Inc()
		logging.Debug().
			Str("entry_id", evicted.ID).
			Time("enqueued_at", evicted.EnqueuedAt).
			Msg("sync queue full, oldest entry evicted")
	}

	return q.persistLocked()
}

// Drain attempts delivery of every entry in enqueue order. Successful entries
// are removed; failed entries have their retry count incremented; entries
// beyond the retry ceiling are dropped. Only one drain runs at a time; a
// concurrent call returns immediately with Skipped set.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		metrics.QueueDrains.WithLabelValues("skipped").Inc()
		return DrainResult{Skipped: true}, nil
	}
	q.draining = true
	pending := make([]Entry, len(q.entries))
	copy(pending, q.entries)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	if len(pending) == 0 {
		return DrainResult{}, nil
	}

	// Entry IDs in the snapshot, recorded before the retain loop below
	// starts rewriting the shared backing array.
	snapshot := make(map[string]struct{}, len(pending))
	for i := range pending {
		snapshot[pending[i].ID] = struct{}{}
	}

	var result DrainResult
	remaining := pending[:0]

	for i := range pending {
		entry := pending[i]

		if err := ctx.Err(); err != nil {
			// Keep everything not yet attempted.
			remaining = append(remaining, pending[i:]...)
			break
		}

		if err := q.sender.Send(ctx, entry.Sample); err != nil {
			entry.Retries++
			if entry.Retries > q.cfg.MaxRetries {
				result.Dropped++
				metrics.QueueRetryExhausted.Inc()
				logging.Info().
					Str("entry_id", entry.ID).
					Int("retries", entry.Retries).
					Msg("queued location dropped after retry ceiling")
				continue
			}
			result.Failed++
			remaining = append(remaining, entry)
			continue
		}

		result.Delivered++
	}

	q.mu.Lock()
	// Keep samples enqueued during the drain: anything in the live queue
	// whose ID is not in the snapshot. A length comparison is not enough —
	// an enqueue at the bound evicts the oldest entry and leaves the
	// length unchanged, which would silently drop the newest sample.
	for i := range q.entries {
		if _, ok := snapshot[q.entries[i].ID]; !ok {
			remaining = append(remaining, q.entries[i])
		}
	}
	q.entries = remaining
	for len(q.entries) > q.cfg.MaxEntries {
		q.entries = q.entries[1:]
		metrics.QueueEvictions.Inc()
	}
	err := q.persistLocked()
	q.mu.Unlock()

	if result.Failed > 0 || result.Dropped > 0 {
		metrics.QueueDrains.WithLabelValues("partial").Inc()
	} else {
		metrics.QueueDrains.WithLabelValues("clean").Inc()
	}

	if result.Delivered > 0 || result.Failed > 0 || result.Dropped > 0 {
		logging.Info().
			Int("delivered", result.Delivered).
			Int("failed", result.Failed).
			Int("dropped", result.Dropped).
			Msg("sync queue drained")
	}
	return result, err
}

// Status returns the queue summary.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := Status{Count: len(q.entries)}
	if len(q.entries) > 0 {
		oldest := q.entries[0].EnqueuedAt
		status.OldestEnqueuedAt = &oldest
	}
	return status
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queued entries, oldest first.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) persistLocked() error {
	if err := q.st.SetJSON(store.KeySyncQueue, q.entries); err != nil {
		return err
	}
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return nil
}
