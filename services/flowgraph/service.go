// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flowgraph provides the HTTP service around the graph
// execution engine.
//
// The service exposes endpoints for:
//   - Submitting graph snapshots for asynchronous execution
//   - Querying run status, results, and history
//   - Cancelling active runs
//   - Streaming live node-data updates over websockets
//   - Validating graphs without executing them
package flowgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/extensions"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/history"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/processors"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/storage/badger"
)

// ServiceVersion is the flowgraph service version.
const ServiceVersion = "1.0.0"

// Service owns the processor registry, model service, history store,
// and the set of active and recently finished runs.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Each submitted run executes on
//	its own engine, so concurrent submissions do not serialize.
type Service struct {
	cfg     Config
	log     *slog.Logger
	scripts processors.ScriptRunner
	exts    extensions.ServiceOptions

	models   model.Service
	registry *engine.Registry
	store    *history.Store
	hub      *streamHub

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool

	mu       sync.RWMutex
	runs     map[string]*runEntry
	finished []string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger. Defaults to
// slog.Default().
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithScriptRunner injects the interpreter behind script nodes.
// Without one, script nodes report that no runner is configured.
func WithScriptRunner(r processors.ScriptRunner) ServiceOption {
	return func(s *Service) {
		s.scripts = r
	}
}

// WithExtensions installs custom auth, audit, and result-filter
// providers. Unset fields fall back to the no-op defaults.
func WithExtensions(opts extensions.ServiceOptions) ServiceOption {
	return func(s *Service) {
		s.exts = opts.Normalize()
	}
}

// NewService creates the flowgraph service.
//
// Description:
//
//	Opens the model directory and the history store, builds the
//	processor registry, and prepares the stream hub. The caller owns
//	the returned service and must Close it.
//
// Inputs:
//
//	cfg - Service configuration. Validated before use.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Service - The ready service.
//	error - Non-nil if the model directory or history store cannot be
//	        opened.
func NewService(cfg Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:  cfg,
		log:  slog.Default(),
		exts: extensions.DefaultOptions(),
		runs: make(map[string]*runEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	models, err := model.NewFileService(cfg.ModelDir,
		model.WithLogger(s.log),
		model.WithCacheCapacity(cfg.CacheCapacity),
	)
	if err != nil {
		return nil, fmt.Errorf("opening model directory: %w", err)
	}
	s.models = models

	dbCfg := badger.DefaultConfig()
	dbCfg.Path = cfg.HistoryPath
	dbCfg.Logger = s.log
	if cfg.HistoryPath == "" {
		dbCfg = badger.InMemoryConfig()
		dbCfg.Logger = s.log
	}
	db, err := badger.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	store, err := history.NewStore(db, s.log)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.store = store

	registry := engine.NewRegistry(s.log)
	if err := processors.RegisterAll(registry, processors.Deps{
		Models:    models,
		ExportDir: cfg.ExportDir,
		Scripts:   s.scripts,
		Logger:    s.log,
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("building registry: %w", err)
	}
	s.registry = registry

	s.hub = newStreamHub(s.log)
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	s.log.Info("flowgraph service ready",
		"model_dir", cfg.ModelDir,
		"history_path", cfg.HistoryPath,
		"node_types", registry.Len(),
	)
	return s, nil
}

// Close stops accepting runs, aborts active ones, and releases the
// history store. Blocks until every run goroutine has exited.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.baseCancel()
	s.wg.Wait()
	s.hub.closeAll()
	if err := s.exts.Auditor.Flush(context.Background()); err != nil {
		s.log.Warn("flushing run auditor", "error", err)
	}
	return s.store.Close()
}

// Models returns the model service, for cache invalidation wiring.
func (s *Service) Models() model.Service {
	return s.models
}

// Registry returns the processor registry.
func (s *Service) Registry() *engine.Registry {
	return s.registry
}

// Extensions returns the installed extension providers.
func (s *Service) Extensions() extensions.ServiceOptions {
	return s.exts
}

// audit records a run lifecycle event. Audit failures are logged and
// never fail the operation that produced them.
func (s *Service) audit(ctx context.Context, ev extensions.RunEvent) {
	if err := s.exts.Auditor.Log(ctx, ev); err != nil {
		s.log.Warn("recording audit event",
			"event_type", ev.EventType, "run_id", ev.RunID, "error", err)
	}
}

// runEntry tracks one submitted run.
type runEntry struct {
	id        string
	subject   string
	nodeCount int
	startedAt time.Time
	cancel    context.CancelFunc

	mu         sync.RWMutex
	done       bool
	result     *engine.Result
	runErr     error
	finishedAt time.Time
}

func (e *runEntry) finish(res *engine.Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = true
	e.result = res
	e.runErr = err
	e.finishedAt = time.Now()
}

// statusResponse builds the API view of the run under the entry lock.
func (e *runEntry) statusResponse() RunStatusResponse {
	e.mu.RLock()
	defer e.mu.RUnlock()

	resp := RunStatusResponse{
		RunID:     e.id,
		Status:    engine.StatusRunning.String(),
		NodeCount: e.nodeCount,
		StartedAt: e.startedAt,
	}
	if !e.done {
		return resp
	}

	finished := e.finishedAt
	resp.FinishedAt = &finished
	resp.DurationMs = finished.Sub(e.startedAt).Milliseconds()
	if e.runErr != nil {
		resp.Error = e.runErr.Error()
	}
	if e.result != nil {
		resp.Status = e.result.Status.String()
		resp.NodesExecuted = e.result.NodesExecuted
		resp.FailedNode = e.result.FailedNode
		resp.Outputs = e.result.Outputs
		resp.Warnings = countWarnings(e.result.Outputs)
	} else {
		resp.Status = engine.StatusFailed.String()
	}
	return resp
}

// Submit accepts a snapshot for asynchronous execution.
//
// Description:
//
//	Validates the snapshot synchronously (structure and cycles), then
//	starts the run on its own engine and returns its id immediately.
//	Execution continues independent of ctx; cancel through CancelRun.
//
// Inputs:
//
//	ctx - Context for the validation phase.
//	snap - Graph snapshot to execute.
//
// Outputs:
//
//	string - The run id.
//	error - Non-nil if the snapshot is invalid, contains a cycle, or
//	        the service is shutting down.
func (s *Service) Submit(ctx context.Context, snap *graph.Snapshot) (string, error) {
	if s.closed.Load() {
		return "", ErrShuttingDown
	}
	if snap == nil {
		return "", ErrNilSnapshot
	}
	if err := snap.Validate(); err != nil {
		return "", err
	}
	if _, err := graph.TopologicalOrder(snap.Nodes, snap.Edges); err != nil {
		return "", err
	}

	runID := uuid.NewString()[:12]
	runCtx, cancel := context.WithCancel(s.baseCtx)

	entry := &runEntry{
		id:        runID,
		subject:   extensions.SubjectFrom(ctx),
		nodeCount: len(snap.Nodes),
		startedAt: time.Now(),
		cancel:    cancel,
	}

	eng, err := engine.New(s.registry,
		engine.WithLogger(s.log),
		engine.WithNodeDataListener(s.hub.publishNodeData),
	)
	if err != nil {
		cancel()
		return "", err
	}

	s.mu.Lock()
	s.runs[runID] = entry
	s.mu.Unlock()

	s.audit(ctx, extensions.RunEvent{
		EventType: "run.submitted",
		Subject:   entry.subject,
		RunID:     runID,
		Outcome:   "accepted",
		Metadata:  map[string]any{"node_count": entry.nodeCount},
	})

	s.wg.Add(1)
	go s.execute(runCtx, eng, entry, snap)

	return runID, nil
}

// execute runs the snapshot and records the outcome.
func (s *Service) execute(ctx context.Context, eng *engine.Engine, entry *runEntry, snap *graph.Snapshot) {
	defer s.wg.Done()
	defer entry.cancel()

	res, err := eng.RunWithID(ctx, entry.id, snap)
	entry.finish(res, err)

	status := engine.StatusFailed
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	if res != nil {
		status = res.Status
	}

	s.recordHistory(entry, res, errMsg)
	// ctx may already be cancelled when the run was aborted, so the
	// audit write uses the service context.
	s.audit(context.Background(), extensions.RunEvent{
		EventType: "run.finished",
		Subject:   entry.subject,
		RunID:     entry.id,
		Outcome:   status.String(),
	})
	s.hub.finishRun(entry.id, status.String(), errMsg)
	s.pruneFinished(entry.id)
}

func (s *Service) recordHistory(entry *runEntry, res *engine.Result, errMsg string) {
	rec := history.Record{
		RunID:     entry.id,
		Status:    engine.StatusFailed.String(),
		NodeCount: entry.nodeCount,
		StartedAt: entry.startedAt,
		Error:     errMsg,
	}
	entry.mu.RLock()
	rec.FinishedAt = entry.finishedAt
	entry.mu.RUnlock()

	if res != nil {
		rec.Status = res.Status.String()
		rec.Warnings = countWarnings(res.Outputs)
	}

	// The run outlives its submitter, so history writes use the
	// service context rather than a request context.
	if err := s.store.Put(context.Background(), rec); err != nil {
		s.log.Error("recording run history", "run_id", entry.id, "error", err)
	}
}

// pruneFinished caps the finished runs kept in memory.
func (s *Service) pruneFinished(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished = append(s.finished, runID)
	for len(s.finished) > s.cfg.MaxTrackedRuns {
		oldest := s.finished[0]
		s.finished = s.finished[1:]
		delete(s.runs, oldest)
	}
}

// Lookup returns the status of a run, falling back to the history
// store for runs no longer tracked in memory. Outputs pass through the
// configured result filter; if the filter fails they are withheld.
func (s *Service) Lookup(ctx context.Context, runID string) (RunStatusResponse, error) {
	s.mu.RLock()
	entry, ok := s.runs[runID]
	s.mu.RUnlock()
	if ok {
		resp := entry.statusResponse()
		if resp.Outputs != nil {
			filtered, err := s.exts.Results.FilterOutputs(ctx, resp.Outputs)
			if err != nil {
				s.log.Warn("filtering run outputs", "run_id", runID, "error", err)
				resp.Outputs = nil
			} else {
				resp.Outputs = filtered
			}
		}
		return resp, nil
	}

	rec, err := s.store.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return RunStatusResponse{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return RunStatusResponse{}, err
	}

	finished := rec.FinishedAt
	return RunStatusResponse{
		RunID:      rec.RunID,
		Status:     rec.Status,
		NodeCount:  rec.NodeCount,
		Warnings:   rec.Warnings,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		FinishedAt: &finished,
		DurationMs: rec.Duration().Milliseconds(),
	}, nil
}

// Recent returns run summaries, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]history.Record, error) {
	return s.store.Recent(ctx, n)
}

// CancelRun requests cooperative cancellation of an active run.
//
// Outputs:
//
//	error - ErrRunNotFound for unknown ids, ErrRunFinished when the
//	        run already reached a terminal status.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	s.mu.RLock()
	entry, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	entry.mu.RLock()
	done := entry.done
	entry.mu.RUnlock()
	if done {
		return fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}

	// Audit the request before acting on it, so the cancelled event
	// always precedes the finished event for the same run.
	s.audit(ctx, extensions.RunEvent{
		EventType: "run.cancelled",
		Subject:   extensions.SubjectFrom(ctx),
		RunID:     runID,
		Outcome:   "requested",
	})
	entry.cancel()
	s.log.Info("run cancellation requested", "run_id", runID)
	return nil
}

// ValidateGraph checks a snapshot without executing it.
//
// Outputs:
//
//	[]string - The execution order the engine would use.
//	error - Non-nil when the snapshot is structurally invalid or
//	        contains a cycle.
func (s *Service) ValidateGraph(snap *graph.Snapshot) ([]string, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return graph.TopologicalOrder(snap.Nodes, snap.Edges)
}

// ActiveRuns counts runs that have not reached a terminal status.
func (s *Service) ActiveRuns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, entry := range s.runs {
		entry.mu.RLock()
		if !entry.done {
			active++
		}
		entry.mu.RUnlock()
	}
	return active
}

// Ready reports whether the service can accept runs.
func (s *Service) Ready() ReadyResponse {
	modelsOK := false
	if info, err := os.Stat(s.cfg.ModelDir); err == nil && info.IsDir() {
		modelsOK = true
	}

	return ReadyResponse{
		Ready:      modelsOK && !s.closed.Load(),
		ModelsOK:   modelsOK,
		ActiveRuns: s.ActiveRuns(),
		NodeTypes:  s.registry.Len(),
	}
}

// countWarnings counts node results that carry a recoverable error
// payload instead of data.
func countWarnings(outputs map[string]any) int {
	n := 0
	for _, out := range outputs {
		if rec, ok := out.(map[string]any); ok {
			if _, failed := rec["error"]; failed {
				n++
			}
		}
	}
	return n
}
