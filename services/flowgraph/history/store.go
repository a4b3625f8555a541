// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists run outcomes.
//
// Records are small summaries, not full results: enough for a run list
// in the editor and for post-hoc "what failed last night" questions.
// Full outputs stay in memory with the run manager; they are not
// persisted here.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/storage/badger"
)

// ---- Sentinel errors ----

var (
	// ErrInvalidRecord indicates a record missing its run id or start
	// time.
	ErrInvalidRecord = errors.New("invalid history record")

	// ErrNotFound indicates no record exists for the run id.
	ErrNotFound = errors.New("history record not found")
)

// Key layout. The primary key orders records by start time so Recent is
// one reverse scan; the index key resolves a run id to its primary key.
const (
	runPrefix = "run/"
	idxPrefix = "idx/"
)

// Record summarizes one run.
type Record struct {
	RunID      string    `json:"runId"`
	Status     string    `json:"status"`
	NodeCount  int       `json:"nodeCount"`
	Warnings   int       `json:"warnings"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns the run's wall time.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store reads and writes run records.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// the isolation.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// NewStore wraps an open database. The store takes ownership: Close
// closes the database.
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists a record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RunID == "" {
		return fmt.Errorf("%w: run id is empty", ErrInvalidRecord)
	}
	if rec.StartedAt.IsZero() {
		return fmt.Errorf("%w: start time is zero", ErrInvalidRecord)
	}

	data, err := jsonx.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}

	primary := runKey(rec.StartedAt, rec.RunID)
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(idxKey(rec.RunID), primary)
	})
	if err != nil {
		return fmt.Errorf("store history record %s: %w", rec.RunID, err)
	}

	s.log.Debug("run recorded",
		"run_id", rec.RunID,
		"status", rec.Status,
		"nodes", rec.NodeCount,
	)
	return nil
}

// Get returns the record for a run id.
func (s *Store) Get(ctx context.Context, runID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(idxKey(runID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err != nil {
			return err
		}

		var primary []byte
		if err := item.Value(func(v []byte) error {
			primary = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}

		pitem, err := txn.Get(primary)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err != nil {
			return err
		}
		return pitem.Value(func(v []byte) error {
			return jsonx.Unmarshal(v, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []Record{}
	if n <= 0 {
		return out, nil
	}

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last key in the prefix.
		seek := append([]byte(runPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(out) < n; it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var rec Record
				if err := jsonx.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("decode history record %s: %w", it.Item().Key(), err)
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// runKey builds the time-ordered primary key. Nanoseconds are
// zero-padded so lexicographic order matches chronological order.
func runKey(startedAt time.Time, runID string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, startedAt.UnixNano(), runID))
}

func idxKey(runID string) []byte {
	return []byte(idxPrefix + runID)
}
