// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine turns a graph snapshot into an ordered, memoized,
// cancellable sequence of processor dispatches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

var (
	tracer = otel.Tracer("flowgraph.engine")
	meter  = otel.Meter("flowgraph.engine")
)

// Status is the engine's run lifecycle state.
type Status int32

const (
	// StatusIdle means no run has been started yet.
	StatusIdle Status = iota

	// StatusRunning means a run is executing.
	StatusRunning

	// StatusCompleted means the last run finished with every node resolved.
	StatusCompleted

	// StatusFailed means the last run halted on an error.
	StatusFailed

	// StatusAborted means the last run was cancelled before completing.
	StatusAborted
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status is a final run outcome.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// NodeDataListener observes node data bags as processors and the engine
// update them, so callers can stream live node state to the editor.
type NodeDataListener func(runID, nodeID string, data graph.NodeData)

// Result is the outcome of one run.
type Result struct {
	// RunID is the short unique id assigned to the run.
	RunID string

	// Status is the run's final status.
	Status Status

	// Outputs is the full result memo, node id to result. After a failed
	// or aborted run it holds the partial results resolved so far.
	Outputs map[string]any

	// Nodes is the run's node list with the latest data bags, including
	// every updateNodeData side effect.
	Nodes []graph.Node

	// NodesExecuted counts processor dispatches (memo hits excluded).
	NodesExecuted int

	// FailedNode is the node whose processor error halted the run.
	FailedNode string

	// NodeDurations records per-node processor time.
	NodeDurations map[string]time.Duration

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the run's wall-clock time.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Engine executes graph snapshots.
//
// Description:
//
//	A run computes a topological order first (surfacing cycles before any
//	node executes), then walks it with a memoized recursive resolution:
//	resolving a node resolves its upstream producers on demand, so a
//	shared ancestor is computed exactly once however many branches need
//	it. Resolution is sequential and depth-first; independent branches
//	are not parallelized, which keeps the memo race-free.
//
// Thread Safety:
//
//	Engine is safe for concurrent use, but serves one run at a time:
//	starting a run while another is active fails with ErrAlreadyRunning.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
	listener NodeDataListener

	status atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	runsTotal     metric.Int64Counter
	runLatency    metric.Float64Histogram
	nodeLatency   metric.Float64Histogram
	nodeFailures  metric.Int64Counter
	nodesExecuted metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNodeDataListener registers the observer invoked after every
// updateNodeData merge.
func WithNodeDataListener(fn NodeDataListener) Option {
	return func(e *Engine) {
		e.listener = fn
	}
}

// New creates an engine over a processor registry.
//
// Inputs:
//
//	registry - Processor registry. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Engine - The configured engine, in StatusIdle.
//	error - Non-nil if registry is nil.
func New(registry *Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry must not be nil", ErrInvalidInput)
	}
	e := &Engine{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Status returns the engine's current run status.
func (e *Engine) Status() Status {
	return Status(e.status.Load())
}

// Abort requests cooperative cancellation of the active run.
//
// Description:
//
//	The run stops initiating new node resolutions and finishes
//	StatusAborted. A processor already in flight is not interrupted;
//	wiring external-call aborts is the processor's own concern.
//
// Outputs:
//
//	bool - false when no run was active.
func (e *Engine) Abort() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// initMetrics lazily initializes metrics, degrading gracefully when the
// meter provider rejects an instrument.
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.runsTotal, err = meter.Int64Counter("flowgraph_runs_total",
			metric.WithDescription("Number of graph runs by final status"),
		)
		if err != nil {
			initErrors = append(initErrors, "runs_total: "+err.Error())
		}

		e.runLatency, err = meter.Float64Histogram("flowgraph_run_duration_seconds",
			metric.WithDescription("Total graph run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		e.nodeLatency, err = meter.Float64Histogram("flowgraph_node_duration_seconds",
			metric.WithDescription("Time spent in each node processor"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeFailures, err = meter.Int64Counter("flowgraph_node_failure_total",
			metric.WithDescription("Number of failed node dispatches"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		e.nodesExecuted, err = meter.Int64Counter("flowgraph_nodes_executed_total",
			metric.WithDescription("Number of processor dispatches"),
		)
		if err != nil {
			initErrors = append(initErrors, "nodes_executed: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// begin transitions the engine to StatusRunning, refusing when a run is
// already active.
func (e *Engine) begin() error {
	for {
		cur := e.status.Load()
		if Status(cur) == StatusRunning {
			return ErrAlreadyRunning
		}
		if e.status.CompareAndSwap(cur, int32(StatusRunning)) {
			return nil
		}
	}
}

// Run executes one graph snapshot to completion.
//
// Description:
//
//	Validates the snapshot, computes the topological order (cycles fail
//	the run before any node executes), then resolves every node through
//	the memoized recursive walk. The engine works on its own deep copy
//	of the snapshot; the caller's copy is never mutated.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	snap - Graph snapshot to execute. Must not be nil.
//
// Outputs:
//
//	*Result - Run outcome with the result memo and latest node bags.
//	          Nil when the run was rejected before executing (invalid
//	          snapshot, cycle, or a run already active).
//	error - Non-nil unless the run completed.
func (e *Engine) Run(ctx context.Context, snap *graph.Snapshot) (*Result, error) {
	return e.RunWithID(ctx, uuid.NewString()[:12], snap)
}

// RunWithID executes like Run under a caller-assigned run id, so a
// service can hand the id to clients before execution starts.
func (e *Engine) RunWithID(ctx context.Context, runID string, snap *graph.Snapshot) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: run id must not be empty", ErrInvalidInput)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot must not be nil", ErrInvalidInput)
	}
	if err := e.begin(); err != nil {
		return nil, err
	}

	e.initMetrics()

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	log := e.logger.With(slog.String("run_id", runID))

	runCtx, span := tracer.Start(runCtx, "flowgraph.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.node_count", len(snap.Nodes)),
			attribute.Int("run.edge_count", len(snap.Edges)),
		),
	)
	defer span.End()

	reject := func(err error, msg string) (*Result, error) {
		e.status.Store(int32(StatusFailed))
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.Error(msg, slog.String("error", err.Error()))
		return nil, err
	}

	if err := snap.Validate(); err != nil {
		return reject(err, "snapshot rejected")
	}

	// Run-local copy: updateNodeData mutates these bags, never the
	// caller's snapshot.
	clone, err := snap.Clone()
	if err != nil {
		return reject(fmt.Errorf("clone snapshot: %w", err), "snapshot rejected")
	}

	order, err := graph.TopologicalOrder(clone.Nodes, clone.Edges)
	if err != nil {
		return reject(err, "ordering failed")
	}

	started := time.Now()
	log.Info("run started",
		slog.Int("nodes", len(order)),
		slog.Int("edges", len(clone.Edges)),
	)

	st := newRunState(runID, clone, log)
	rc := &runContext{engine: e, state: st}

	var runErr error
	for _, id := range order {
		if err := runCtx.Err(); err != nil {
			runErr = err
			break
		}
		if _, err := e.resolve(runCtx, rc, id); err != nil {
			runErr = err
			break
		}
	}

	status := StatusCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || runCtx.Err() != nil:
		status = StatusAborted
	default:
		status = StatusFailed
	}
	e.status.Store(int32(status))

	result := &Result{
		RunID:         runID,
		Status:        status,
		Outputs:       st.results,
		Nodes:         st.nodes,
		NodesExecuted: st.executed,
		NodeDurations: st.durations,
		StartedAt:     started,
		FinishedAt:    time.Now(),
	}
	var nodeErr *NodeError
	if errors.As(runErr, &nodeErr) {
		result.FailedNode = nodeErr.NodeID
	}

	if e.runsTotal != nil {
		e.runsTotal.Add(runCtx, 1,
			metric.WithAttributes(attribute.String("status", status.String())),
		)
	}
	if e.runLatency != nil {
		e.runLatency.Record(runCtx, result.Duration().Seconds(),
			metric.WithAttributes(attribute.String("status", status.String())),
		)
	}

	switch status {
	case StatusCompleted:
		span.SetStatus(codes.Ok, "")
		log.Info("run completed",
			slog.Duration("duration", result.Duration()),
			slog.Int("nodes_executed", result.NodesExecuted),
		)
	case StatusAborted:
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run aborted")
		log.Warn("run aborted",
			slog.Duration("duration", result.Duration()),
			slog.Int("nodes_executed", result.NodesExecuted),
		)
	default:
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Error("run failed",
			slog.String("failed_node", result.FailedNode),
			slog.String("error", runErr.Error()),
		)
	}

	return result, runErr
}

// resolve ensures a node has a memoized result, resolving its upstream
// producers recursively first.
func (e *Engine) resolve(ctx context.Context, rc *runContext, nodeID string) (any, error) {
	st := rc.state
	if res, ok := st.results[nodeID]; ok {
		return res, nil
	}
	// Cancellation is cooperative: checked between resolutions only.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, ok := st.byID[nodeID]
	if !ok {
		return nil, &graph.NodeNotFoundError{NodeID: nodeID}
	}

	inputs, err := e.resolveInputs(ctx, rc, nodeID)
	if err != nil {
		return nil, err
	}

	// Read the node after input resolution so the bag reflects any
	// upstream updateNodeData side effects.
	node := st.nodes[idx]

	proc, ok := e.registry.Get(node.Type)
	if !ok {
		return nil, &UnknownNodeTypeError{NodeID: node.ID, NodeType: node.Type}
	}

	nodeCtx, span := tracer.Start(ctx, "flowgraph.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", node.Type),
			attribute.String("run.id", st.id),
		),
	)
	defer span.End()

	st.log.Debug("node starting",
		slog.String("node_id", node.ID),
		slog.String("node_type", node.Type),
	)
	_ = rc.UpdateNodeData(node.ID, graph.NodeData{
		graph.DataKeyLoading: true,
		graph.DataKeyError:   nil,
	})

	start := time.Now()
	res, err := proc.Process(nodeCtx, node, inputs, rc)
	duration := time.Since(start)

	st.executed++
	st.durations[node.ID] = duration
	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("node_type", node.Type)),
		)
	}
	if e.nodesExecuted != nil {
		e.nodesExecuted.Add(ctx, 1)
	}

	if err != nil {
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("node_type", node.Type)),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		_ = rc.UpdateNodeData(node.ID, graph.NodeData{
			graph.DataKeyLoading: false,
			graph.DataKeyError:   err.Error(),
		})
		st.log.Error("node failed",
			slog.String("node_id", node.ID),
			slog.String("node_type", node.Type),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, NewNodeError(node.ID, node.Type, err)
	}

	span.SetStatus(codes.Ok, "")
	st.results[node.ID] = res
	_ = rc.UpdateNodeData(node.ID, graph.NodeData{
		graph.DataKeyLoading: false,
		graph.DataKeyResult:  res,
	})
	st.log.Debug("node completed",
		slog.String("node_id", node.ID),
		slog.Duration("duration", duration),
	)

	return res, nil
}

// resolveInputs builds a node's input bag from its incoming edges, in
// snapshot edge order. When two edges share a target handle, the later
// edge wins.
func (e *Engine) resolveInputs(ctx context.Context, rc *runContext, nodeID string) (Inputs, error) {
	inputs := make(Inputs)
	for _, edge := range rc.state.incoming[nodeID] {
		res, err := e.resolve(ctx, rc, edge.Source)
		if err != nil {
			return nil, err
		}
		inputs[edge.InputHandle()] = res
	}
	return inputs, nil
}

// runState is the engine-owned bookkeeping for one run.
type runState struct {
	id        string
	log       *slog.Logger
	nodes     []graph.Node
	byID      map[string]int
	edges     []graph.Edge
	incoming  map[string][]graph.Edge
	results   map[string]any
	durations map[string]time.Duration
	executed  int
}

func newRunState(runID string, snap *graph.Snapshot, log *slog.Logger) *runState {
	st := &runState{
		id:        runID,
		log:       log,
		nodes:     snap.Nodes,
		byID:      make(map[string]int, len(snap.Nodes)),
		edges:     snap.Edges,
		incoming:  make(map[string][]graph.Edge),
		results:   make(map[string]any, len(snap.Nodes)),
		durations: make(map[string]time.Duration, len(snap.Nodes)),
	}
	for i, n := range snap.Nodes {
		st.byID[n.ID] = i
	}
	for _, e := range snap.Edges {
		st.incoming[e.Target] = append(st.incoming[e.Target], e)
	}
	return st
}

// runContext implements Context over one run's state.
type runContext struct {
	engine *Engine
	state  *runState
}

func (rc *runContext) RunID() string {
	return rc.state.id
}

func (rc *runContext) Nodes() []graph.Node {
	return rc.state.nodes
}

func (rc *runContext) Edges() []graph.Edge {
	return rc.state.edges
}

func (rc *runContext) Result(nodeID string) (any, bool) {
	res, ok := rc.state.results[nodeID]
	return res, ok
}

// UpdateNodeData merges a patch into the run's copy of a node's data bag
// and notifies the engine's listener with an independent copy.
func (rc *runContext) UpdateNodeData(nodeID string, patch graph.NodeData) error {
	st := rc.state
	idx, ok := st.byID[nodeID]
	if !ok {
		return &graph.NodeNotFoundError{NodeID: nodeID}
	}
	node := &st.nodes[idx]
	if node.Data == nil {
		node.Data = graph.NodeData{}
	}
	if err := mergePatch(node.Data, patch); err != nil {
		return err
	}
	rc.engine.notifyNodeData(st.id, nodeID, node.Data)
	return nil
}

// mergePatch applies patch onto dst: nil values delete keys, map values
// deep-merge into existing maps, everything else overwrites.
func mergePatch(dst, patch map[string]any) error {
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			merged := dstMap
			if err := mergo.Merge(&merged, srcMap, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
				return fmt.Errorf("merge %q: %w", k, err)
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
	return nil
}

func (e *Engine) notifyNodeData(runID, nodeID string, data graph.NodeData) {
	if e.listener == nil {
		return
	}
	bag, err := data.Clone()
	if err != nil {
		e.logger.Debug("node data clone failed",
			slog.String("node_id", nodeID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.listener(runID, nodeID, bag)
}
