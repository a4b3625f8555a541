// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command flowgraph starts the flowgraph execution API server.
//
// The server accepts node graphs over HTTP, executes them against IFC
// model documents, and streams per-node results over websockets.
//
// Usage:
//
//	go run ./cmd/flowgraph
//	go run ./cmd/flowgraph -config flowgraph.yaml
//	go run ./cmd/flowgraph -listen :9090 -debug
//
// Environment variables override file settings:
//
//   - FLOWGRAPH_LISTEN: HTTP listen address (default :8080)
//   - FLOWGRAPH_MODEL_DIR: model document directory (default ./models)
//   - FLOWGRAPH_HISTORY_PATH: run history directory (default ./data/history)
//   - FLOWGRAPH_LOG_DIR: JSON log file directory (default stderr only)
//   - OTEL_TRACES_EXPORTER: none, stdout, or otlp (default none)
//   - OTEL_METRICS_EXPORTER: none, stdout, or prometheus (default none)
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/health
//
//	# Submit a graph for execution
//	curl -X POST http://localhost:8080/api/v1/runs \
//	  -H "Content-Type: application/json" \
//	  -d '{"graph": {"nodes": [...], "edges": [...]}}'
//
//	# Poll a run
//	curl http://localhost:8080/api/v1/runs/RUN_ID
//
//	# Validate without executing
//	curl -X POST http://localhost:8080/api/v1/graphs/validate \
//	  -H "Content-Type: application/json" \
//	  -d '{"graph": {"nodes": [...], "edges": [...]}}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/logging"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/telemetry"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listen := flag.String("listen", "", "Listen address override, e.g. :9090")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := flowgraph.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logCfg := logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.LogDir,
		Service: "flowgraph",
	}
	if *debug {
		logCfg.Level = logging.LevelDebug
	}
	log := logging.New(logCfg)
	defer log.Close()
	slog.SetDefault(log.Slog())

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log.Slog(), *debug); err != nil {
		log.Error("Server error", "error", err)
		log.Close()
		os.Exit(1)
	}
}

func run(cfg flowgraph.Config, logger *slog.Logger, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			slog.Warn("Telemetry shutdown error", "error", err)
		}
	}()

	ensureDirs(cfg)

	svc, err := flowgraph.NewService(cfg, flowgraph.WithServiceLogger(logger))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Service close error", "error", err)
		}
	}()

	// Invalidate cached model documents when files change on disk, so
	// the next run that references them reloads fresh bytes.
	modelWatcher, err := watcher.New(cfg.ModelDir, func(changes []watcher.Change) {
		for _, ch := range changes {
			svc.Models().Invalidate(ch.Ref)
			slog.Info("Model document changed", "ref", ch.Ref, "op", ch.Op.String())
		}
	}, &watcher.Options{Logger: logger})
	if err != nil {
		slog.Warn("Model watcher unavailable", "dir", cfg.ModelDir, "error", err)
	} else {
		if err := modelWatcher.Start(ctx); err != nil {
			slog.Warn("Model watcher failed to start", "error", err)
		} else {
			defer modelWatcher.Stop()
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	if debug {
		router.Use(gin.Logger())
	}

	handlers := flowgraph.NewHandlers(svc).WithLogger(logger)
	flowgraph.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold connections open
		IdleTimeout:  60 * time.Second,
	}

	printBanner(cfg.Listen)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting flowgraph server", "address", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down flowgraph server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ensureDirs creates the working directories the service expects. A
// missing model directory is a startup error in NewService, so create
// it here for first runs.
func ensureDirs(cfg flowgraph.Config) {
	for _, dir := range []string{cfg.ModelDir, cfg.ExportDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Warn("Failed to create directory", "dir", dir, "error", err)
		}
	}
}

func printBanner(addr string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                  FLOWGRAPH SERVER                         ║
╠═══════════════════════════════════════════════════════════╣
║                                                           ║
║  Node graph execution over IFC model documents.           ║
║                                                           ║
║  Endpoints:                                               ║
║  ├── Runs: POST /api/v1/runs, GET /api/v1/runs/:id        ║
║  ├── Stream: GET /api/v1/runs/:id/stream (websocket)      ║
║  ├── Validate: POST /api/v1/graphs/validate               ║
║  └── Ops: /health, /ready, /metrics                       ║
║                                                           ║
║  Press Ctrl+C to stop                                     ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("Listening on %s\n", addr)
}
