// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flowgraph

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// subscriberBuffer is the per-subscriber event channel capacity. A
// subscriber that falls this far behind starts losing node_data
// events; the terminal status event is delivered regardless.
const subscriberBuffer = 64

// streamHub fans node-data updates out to websocket subscribers.
//
// Thread Safety: safe for concurrent use.
type streamHub struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[chan StreamEvent]struct{}
	closed bool
}

func newStreamHub(log *slog.Logger) *streamHub {
	return &streamHub{
		log:  log,
		subs: make(map[string]map[chan StreamEvent]struct{}),
	}
}

// subscribe registers a listener for one run's events. The returned
// cancel is safe to call after the hub already closed the channel.
func (h *streamHub) subscribe(runID string) (chan StreamEvent, func()) {
	ch := make(chan StreamEvent, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	set, ok := h.subs[runID]
	if !ok {
		set = make(map[chan StreamEvent]struct{})
		h.subs[runID] = set
	}
	set[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[runID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
	}
	return ch, cancel
}

// publishNodeData broadcasts a node-data update. Matches the engine's
// listener signature.
func (h *streamHub) publishNodeData(runID, nodeID string, data graph.NodeData) {
	h.broadcast(runID, StreamEvent{
		Type:   "node_data",
		RunID:  runID,
		NodeID: nodeID,
		Data:   data,
	}, false)
}

// finishRun broadcasts the terminal status and closes every
// subscriber channel for the run.
func (h *streamHub) finishRun(runID, status, errMsg string) {
	h.broadcast(runID, StreamEvent{
		Type:   "status",
		RunID:  runID,
		Status: status,
		Error:  errMsg,
	}, true)
}

func (h *streamHub) broadcast(runID string, ev StreamEvent, final bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for ch := range h.subs[runID] {
		select {
		case ch <- ev:
		default:
			if final {
				// Drop one buffered event to guarantee the status
				// event lands.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			} else {
				h.log.Debug("stream subscriber lagging, dropping event",
					"run_id", runID, "node_id", ev.NodeID)
			}
		}
	}

	if final {
		for ch := range h.subs[runID] {
			close(ch)
		}
		delete(h.subs, runID)
	}
}

// closeAll closes every subscriber channel and stops the hub.
func (h *streamHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for runID, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, runID)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
}

// HandleRunStream handles GET /api/v1/runs/:id/stream.
//
// Description:
//
//	Upgrades to a websocket and pushes node_data events as processors
//	update node bags, ending with one status event when the run
//	reaches a terminal state. A run that already finished gets the
//	status event immediately.
//
// Path Parameters:
//
//	id: Run ID (required)
func (h *Handlers) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")
	logger := h.log.With("handler", "HandleRunStream", "run_id", runID)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// Subscribe before the status check so a finish between the two
	// cannot be missed.
	events, unsubscribe := h.svc.hub.subscribe(runID)
	defer unsubscribe()

	resp, err := h.svc.Lookup(c.Request.Context(), runID)
	if err != nil {
		_ = ws.WriteJSON(StreamEvent{Type: "status", RunID: runID, Status: "unknown", Error: err.Error()})
		return
	}
	if resp.Status != engineRunning {
		_ = ws.WriteJSON(StreamEvent{
			Type:   "status",
			RunID:  runID,
			Status: resp.Status,
			Error:  resp.Error,
		})
		return
	}

	logger.Info("stream client connected")

	// The client never sends application messages; the read loop only
	// notices disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			logger.Info("stream client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				logger.Warn("writing stream event", "error", err)
				return
			}
			if ev.Type == "status" {
				logger.Info("stream finished", "status", ev.Status)
				return
			}
		}
	}
}

// engineRunning mirrors engine.StatusRunning.String() for status
// comparisons on API responses.
const engineRunning = "running"
