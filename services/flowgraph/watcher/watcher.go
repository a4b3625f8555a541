// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watcher observes a directory of model documents and reports
// changed model refs after a debounce window.
//
// Editors and exporters rewrite documents in bursts, one temp-file
// rename or several partial writes at a time. The watcher collects
// those events and delivers one deduplicated batch per quiet period,
// so a watch-mode consumer invalidates and reruns once per save, not
// once per write syscall.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const documentExt = ".json"

// Change is one debounced document change.
type Change struct {
	// Ref is the model ref of the changed document, relative to the
	// watched directory with forward slashes.
	Ref string

	// Op is the kind of change.
	Op Op

	// Time is when the change was observed.
	Time time.Time
}

// Op is the kind of file operation behind a Change.
type Op int

const (
	// OpCreate indicates a document appeared.
	OpCreate Op = iota

	// OpWrite indicates a document was rewritten.
	OpWrite

	// OpRemove indicates a document was deleted.
	OpRemove

	// OpRename indicates a document was renamed away.
	OpRename
)

// String returns the lowercase name of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Handler receives each debounced batch. Batches are non-empty and
// deduplicated by ref, keeping the latest operation per document.
type Handler func(changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for further events before
	// delivering a batch. Default: 200ms.
	Debounce time.Duration

	// BufferSize is the event channel capacity. Default: 256.
	BufferSize int

	// Logger receives watch errors. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher configuration.
func DefaultOptions() Options {
	return Options{
		Debounce:   200 * time.Millisecond,
		BufferSize: 256,
	}
}

// Watcher watches a model directory for document changes.
//
// Thread Safety: safe for concurrent use. The handler runs on a
// single goroutine owned by the watcher.
type Watcher struct {
	dir      string
	fsw      *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	log      *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New creates a watcher over dir. Call Start to begin watching and
// Stop to release the underlying OS watches.
func New(dir string, handler Handler, opts *Options) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		fsw:      fsw,
		handler:  handler,
		debounce: opts.Debounce,
		log:      opts.Logger,
		changes:  make(chan Change, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the directory tree.
//
// Description:
//
//	Registers OS watches on the directory and every subdirectory,
//	then runs the event and debounce loops until ctx is canceled or
//	Stop is called.
//
// Inputs:
//
//	ctx - Cancels watching when done. Must not be nil.
//
// Outputs:
//
//	error - Non-nil if the initial watch registration fails.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops watching and releases OS watches. Safe to call more than
// once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("closing fs watcher", "error", err)
		}

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A vanished subdirectory is not fatal; keep walking.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// refFor maps an event path back to a model ref. Returns false for
// paths outside the watched tree and for non-document files.
func (w *Watcher) refFor(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, documentExt) {
		return "", false
	}

	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			// New subdirectories need their own watch before any
			// document lands in them.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(event.Name), ".") {
						if err := w.fsw.Add(event.Name); err != nil {
							w.log.Warn("watching new directory", "path", event.Name, "error", err)
						}
					}
					continue
				}
			}

			ref, ok := w.refFor(event.Name)
			if !ok {
				continue
			}

			change := Change{Ref: ref, Op: convertOp(event.Op), Time: time.Now()}
			select {
			case w.changes <- change:
			default:
				w.log.Warn("change buffer full, dropping event", "ref", ref)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the latest change per ref, preserving first-seen order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	result := make([]Change, 0, len(changes))

	for _, change := range changes {
		if idx, ok := seen[change.Ref]; ok {
			result[idx] = change
			continue
		}
		seen[change.Ref] = len(result)
		result = append(result, change)
	}
	return result
}
