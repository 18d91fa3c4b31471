// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package store provides the agent's persisted key-value storage on BadgerDB.
// It holds everything that must survive a process restart: the sync queue
// contents, the tracking-state flag, the wake-lock flag, the battery-saving
// preference, and the session record.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
)

// Well-known keys. Components agree on these so a restarted process can
// reconstruct its state from the store alone.
const (
	KeySyncQueue         = "sync_queue"
	KeyTrackingState     = "tracking_state"
	KeyWakeLockHeld      = "wakelock_held"
	KeyBatterySaving     = "battery_saving_enabled"
	KeySession           = "session"
	KeyTrackingStartedAt = "tracking_started_at"
)

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Config configures the BadgerDB store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// SyncWrites forces fsync per write.
	SyncWrites bool
}

// Store is a thin, typed facade over a BadgerDB instance.
type Store struct {
	db *badger.DB
}

// Open creates or opens the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	// The agent stores a handful of small records; keep Badger quiet and lean.
	opts.Logger = nil
	opts.MemTableSize = 8 * 1024 * 1024

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("store opened")
	return &Store{db: db}, nil
}

// Get returns the raw value for key. found is false when the key is absent.
func (s *Store) Get(key string) (value []byte, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("store get %q: %w", key, err)
	}
	return value, found, nil
}

// Set writes the raw value for key.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store remove %q: %w", key, err)
	}
	return nil
}

// GetJSON unmarshals the value at key into v. found is false when absent.
func (s *Store) GetJSON(key string, v interface{}) (bool, error) {
	raw, found, err := s.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("store decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and writes it at key.
func (s *Store) SetJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store encode %q: %w", key, err)
	}
	return s.Set(key, raw)
}

// GetBool reads a boolean flag, returning def when the key is absent or
// unreadable. Flags back trivial state like the wake-lock hint; a corrupt
// value is not worth surfacing.
func (s *Store) GetBool(key string, def bool) bool {
	var v bool
	found, err := s.GetJSON(key, &v)
	if err != nil || !found {
		if err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("store flag unreadable, using default")
		}
		return def
	}
	return v
}

// SetBool writes a boolean flag.
func (s *Store) SetBool(key string, v bool) error {
	return s.SetJSON(key, v)
}

// Close shuts the store down, bounding the Badger close with a timeout so a
// wedged compaction cannot hang agent shutdown.
func (s *Store) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close store: %w", err)
		}
		logging.Info().Msg("store closed")
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("store close timed out")
	}
}
