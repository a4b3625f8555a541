// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens the embedded store backing run history.
//
// BadgerDB gives the service local persistence without an external
// database: run records survive restarts, and in-memory mode keeps
// tests hermetic.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for database files. Required unless
	// InMemory is set; created on open when missing.
	Path string

	// InMemory disables disk persistence. Data is lost on Close.
	InMemory bool

	// SyncWrites makes every commit durable before returning.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil silences
	// them.
	Logger *slog.Logger

	// GCInterval is how often value log garbage collection runs.
	// Zero disables the GC loop.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a value log
	// file is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns the production configuration: durable writes
// and a background GC loop.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns the test configuration: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB is a BadgerDB instance with lifecycle management: directory
// bootstrap on open, an optional GC loop, both torn down by Close.
type DB struct {
	*badger.DB

	path     string
	inMemory bool
	logger   *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the store described by cfg.
//
// Description:
//
//	Creates the database directory when missing, opens BadgerDB, and
//	starts the GC loop when configured. The caller owns the returned
//	handle and must Close it.
//
// Outputs:
//
//	*DB   - Safe for concurrent use.
//	error - Non-nil if the configuration is invalid or the open fails.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	d := &DB{
		DB:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
		logger:   cfg.Logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		d.gcStop = make(chan struct{})
		d.gcDone = make(chan struct{})
		go d.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return d, nil
}

// Close stops the GC loop and closes the database.
func (d *DB) Close() error {
	if d.gcStop != nil {
		close(d.gcStop)
		<-d.gcDone
		d.gcStop = nil
	}
	return d.DB.Close()
}

// Path returns the database directory, empty for in-memory stores.
func (d *DB) Path() string {
	return d.path
}

// InMemory reports whether the store persists to disk.
func (d *DB) InMemory() bool {
	return d.inMemory
}

func (d *DB) gcLoop(interval time.Duration, ratio float64) {
	defer close(d.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.gcStop:
			return
		case <-ticker.C:
			// Nil means a value log file was rewritten; ErrNoRewrite
			// means there was nothing to collect.
			err := d.RunValueLogGC(ratio)
			switch {
			case err == nil:
				if d.logger != nil {
					d.logger.Debug("badger value log GC completed")
				}
			case !errors.Is(err, badger.ErrNoRewrite):
				if d.logger != nil {
					d.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
				}
			}
		}
	}
}
