// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package store persists detections in BadgerDB. The detection core
// never deletes records; retention is enforced by the sweeper marking
// aged-out detections inactive and by Badger's value-log GC.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// Key prefixes for BadgerDB storage.
const (
	detectionKeyPrefix = "detection:"
	idIndexKeyPrefix   = "detection_id:"
)

// ErrNotFound is returned when no detection exists for an id.
var ErrNotFound = errors.New("detection not found")

// Config controls how the Badger database is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and ephemeral
	// sweeps where persistence across restarts is not wanted.
	InMemory bool

	// SyncWrites fsyncs every write. Slower, survives power loss.
	SyncWrites bool
}

// Filter narrows List and Count.
type Filter struct {
	// Protocol restricts to one sensing protocol when non-empty.
	Protocol taxonomy.Protocol

	// MinSeverity drops detections below this level when non-empty.
	MinSeverity taxonomy.ThreatLevel

	// Since drops detections observed before this instant when non-zero.
	Since time.Time

	// ActiveOnly drops detections the sweeper has already retired.
	ActiveOnly bool

	// Limit caps the number of results; zero means no cap. Results are
	// newest first.
	Limit int
}

// DetectionStore is the persistence contract the rest of the system
// programs against.
type DetectionStore interface {
	Save(ctx context.Context, det *detection.Detection) error
	Get(ctx context.Context, id string) (*detection.Detection, error)
	List(ctx context.Context, f Filter) ([]*detection.Detection, error)
	Count(ctx context.Context, f Filter) (int, error)
	MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// BadgerStore implements DetectionStore on BadgerDB. Detections are
// keyed by zero-padded observation time so iteration order is scan
// order, with a secondary id index for point lookups.
type BadgerStore struct {
	db *badger.DB
}

// Open creates (or opens) the detection database.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store: path required for on-disk database")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open detection db: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Detection store opened")
	return &BadgerStore{db: db}, nil
}

// detectionKey orders records by observation time, then id for
// uniqueness within one nanosecond.
func detectionKey(det *detection.Detection) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", detectionKeyPrefix, det.Timestamp.UnixNano(), det.ID))
}

// Save persists one detection. Saving an existing id under the same
// timestamp overwrites it, which is how the sweeper retires records.
func (s *BadgerStore) Save(_ context.Context, det *detection.Detection) error {
	if det == nil || det.ID == "" {
		return errors.New("store: detection must carry an id")
	}

	data, err := json.Marshal(det)
	if err != nil {
		return fmt.Errorf("marshal detection: %w", err)
	}
	key := detectionKey(det)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set detection: %w", err)
		}
		idKey := []byte(idIndexKeyPrefix + det.ID)
		if err := txn.Set(idKey, key); err != nil {
			return fmt.Errorf("set id index: %w", err)
		}
		return nil
	})
}

// Get retrieves a detection by id.
func (s *BadgerStore) Get(_ context.Context, id string) (*detection.Detection, error) {
	var det detection.Detection

	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get([]byte(idIndexKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get id index: %w", err)
		}

		var key []byte
		if err := idx.Value(func(val []byte) error {
			key = append([]byte{}, val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get detection: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &det)
		})
	})
	if err != nil {
		return nil, err
	}
	return &det, nil
}

// List returns matching detections, newest first.
func (s *BadgerStore) List(_ context.Context, f Filter) ([]*detection.Detection, error) {
	var out []*detection.Detection

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(detectionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the prefix range.
		seek := []byte(detectionKeyPrefix + "~")
		for it.Seek(seek); it.ValidForPrefix([]byte(detectionKeyPrefix)); it.Next() {
			var det detection.Detection
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &det)
			}); err != nil {
				return err
			}
			if !matches(&det, f) {
				// Keys are time ordered, so once we pass Since nothing
				// older can match.
				if !f.Since.IsZero() && det.Timestamp.Before(f.Since) {
					return nil
				}
				continue
			}
			out = append(out, &det)
			if f.Limit > 0 && len(out) >= f.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of matching detections.
func (s *BadgerStore) Count(ctx context.Context, f Filter) (int, error) {
	f.Limit = 0
	list, err := s.List(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// MarkInactiveBefore clears the Active flag on every detection observed
// before cutoff and returns how many records changed.
func (s *BadgerStore) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.List(ctx, Filter{ActiveOnly: true})
	if err != nil {
		return 0, err
	}

	retired := 0
	for _, det := range stale {
		if !det.Timestamp.Before(cutoff) {
			continue
		}
		det.Active = false
		if err := s.Save(ctx, det); err != nil {
			return retired, fmt.Errorf("retire detection %s: %w", det.ID, err)
		}
		retired++
	}
	return retired, nil
}

// RunGC triggers one round of Badger value-log garbage collection.
// badger.ErrNoRewrite (nothing to collect) is not an error.
func (s *BadgerStore) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) &&
		!strings.Contains(err.Error(), "Cannot run value log GC when DB is opened in InMemory mode") {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func matches(det *detection.Detection, f Filter) bool {
	if f.Protocol != "" && det.Protocol != f.Protocol {
		return false
	}
	if f.MinSeverity != "" && !det.Severity.AtLeast(f.MinSeverity) {
		return false
	}
	if !f.Since.IsZero() && det.Timestamp.Before(f.Since) {
		return false
	}
	if f.ActiveOnly && !det.Active {
		return false
	}
	return true
}
