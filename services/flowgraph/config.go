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
	"fmt"
	"os"
	"strconv"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/telemetry"
)

// Config configures the flowgraph service.
type Config struct {
	// Listen is the HTTP listen address.
	// Default: ":8080"
	Listen string `yaml:"listen"`

	// ModelDir is the directory holding model documents.
	// Default: "./models"
	ModelDir string `yaml:"model_dir"`

	// ExportDir is the directory export nodes write into.
	// Default: "./exports"
	ExportDir string `yaml:"export_dir"`

	// HistoryPath is the directory for the run history store. Empty
	// keeps history in memory only.
	// Default: "./data/history"
	HistoryPath string `yaml:"history_path"`

	// CacheCapacity is the model document cache size.
	// Default: 16
	CacheCapacity int `yaml:"cache_capacity"`

	// SubmitRate limits run submissions per second.
	// Default: 5
	SubmitRate rate.Limit `yaml:"submit_rate"`

	// SubmitBurst is the submission burst allowance.
	// Default: 10
	SubmitBurst int `yaml:"submit_burst"`

	// MaxTrackedRuns caps finished runs kept in memory with full
	// results. Older runs remain queryable through history summaries.
	// Default: 128
	MaxTrackedRuns int `yaml:"max_tracked_runs"`

	// LogDir duplicates server logs to a JSON file in this directory
	// when non-empty. Stderr logging always applies.
	// Default: "" (stderr only)
	LogDir string `yaml:"log_dir"`

	// Telemetry configures tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		Listen:         ":8080",
		ModelDir:       "./models",
		ExportDir:      "./exports",
		HistoryPath:    "./data/history",
		CacheCapacity:  16,
		SubmitRate:     rate.Limit(5),
		SubmitBurst:    10,
		MaxTrackedRuns: 128,
		Telemetry:      telemetry.DefaultConfig(),
	}
}

// LoadConfig builds the service configuration.
//
// Description:
//
//	Starts from defaults, merges the YAML file at path when given, and
//	finally applies environment overrides:
//
//	  - FLOWGRAPH_LISTEN
//	  - FLOWGRAPH_MODEL_DIR
//	  - FLOWGRAPH_EXPORT_DIR
//	  - FLOWGRAPH_HISTORY_PATH
//	  - FLOWGRAPH_CACHE_CAPACITY
//	  - FLOWGRAPH_LOG_DIR
//
// Inputs:
//
//	path - YAML config file. Empty skips the file step.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file is unreadable or invalid.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run
// with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("config: model_dir must not be empty")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("config: cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.SubmitRate <= 0 {
		return fmt.Errorf("config: submit_rate must be positive, got %v", c.SubmitRate)
	}
	if c.SubmitBurst <= 0 {
		return fmt.Errorf("config: submit_burst must be positive, got %d", c.SubmitBurst)
	}
	if c.MaxTrackedRuns <= 0 {
		return fmt.Errorf("config: max_tracked_runs must be positive, got %d", c.MaxTrackedRuns)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLOWGRAPH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("FLOWGRAPH_MODEL_DIR"); v != "" {
		c.ModelDir = v
	}
	if v := os.Getenv("FLOWGRAPH_EXPORT_DIR"); v != "" {
		c.ExportDir = v
	}
	if v := os.Getenv("FLOWGRAPH_HISTORY_PATH"); v != "" {
		c.HistoryPath = v
	}
	if v := os.Getenv("FLOWGRAPH_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CacheCapacity = n
		}
	}
	if v := os.Getenv("FLOWGRAPH_LOG_DIR"); v != "" {
		c.LogDir = v
	}
}
