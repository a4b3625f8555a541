// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package processors

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/validation"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// Exporter serializes one node result to an output stream.
type Exporter interface {
	// Format is the config tag that selects this exporter.
	Format() string

	// Export writes data to w. Errors surface as the node's error
	// result, not a run failure.
	Export(w io.Writer, data any) error
}

// DefaultExporters returns the bundled exporters keyed by format tag.
func DefaultExporters() map[string]Exporter {
	return map[string]Exporter{
		"json": JSONExporter{},
		"csv":  CSVExporter{},
	}
}

// JSONExporter writes the value as indented JSON.
type JSONExporter struct{}

// Format implements Exporter.
func (JSONExporter) Format() string { return "json" }

// Export implements Exporter.
func (JSONExporter) Export(w io.Writer, data any) error {
	buf, err := jsonx.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	buf = append(buf, '\n')
	_, err = w.Write(buf)
	return err
}

// CSVExporter writes an element record list as CSV. The header is the
// sorted union of record keys; nested values render as JSON cells.
type CSVExporter struct{}

// Format implements Exporter.
func (CSVExporter) Format() string { return "csv" }

// Export implements Exporter.
func (CSVExporter) Export(w io.Writer, data any) error {
	recs, ok := records(data)
	if !ok || len(recs) == 0 {
		return fmt.Errorf("csv export needs a non-empty record list")
	}

	seen := make(map[string]struct{})
	for _, rec := range recs {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(header))
	for _, rec := range recs {
		for i, col := range header {
			row[i] = csvCell(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell renders scalars directly and anything structured as JSON.
func csvCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		buf, err := jsonx.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(buf)
	}
}

// exportProcessor serializes its input into the export directory.
// Config: properties.format selects the exporter, properties.fileName
// the target (the format extension is appended when absent).
type exportProcessor struct {
	dir       string
	exporters map[string]Exporter
	log       *slog.Logger
}

func (*exportProcessor) Type() string { return "exportNode" }

func (p *exportProcessor) Process(_ context.Context, node graph.Node, inputs engine.Inputs, _ engine.Context) (any, error) {
	if p.dir == "" {
		return errorResult("export directory not configured"), nil
	}

	format := node.Data.StringProperty("format", "json")
	exporter, ok := p.exporters[format]
	if !ok {
		return errorResult("unsupported export format %q", format), nil
	}

	name := node.Data.StringProperty("fileName", "")
	if name == "" {
		return errorResult("no export file name configured"), nil
	}
	if !strings.HasSuffix(name, "."+format) {
		name += "." + format
	}
	if err := validation.ValidateExportName(name); err != nil {
		return errorResult("invalid export file name: %v", err), nil
	}

	data := inputs.Primary()
	bytes, err := p.write(name, exporter, data)
	if err != nil {
		return errorResult("export failed: %v", err), nil
	}

	items := 1
	if recs, ok := records(data); ok {
		items = len(recs)
	}
	p.log.Info("export written",
		"file", name,
		"format", format,
		"bytes", bytes,
		"items", items,
	)
	return map[string]any{
		"file":   name,
		"format": format,
		"bytes":  bytes,
		"items":  items,
	}, nil
}

// write serializes into a temp file in the target directory and renames
// it into place, so a concurrent reader never observes a partial
// export.
func (p *exportProcessor) write(name string, exporter Exporter, data any) (int64, error) {
	tempFile, err := os.CreateTemp(p.dir, ".export-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := exporter.Export(tempFile, data); err != nil {
		tempFile.Close()
		return 0, err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return 0, fmt.Errorf("sync export: %w", err)
	}
	fi, err := tempFile.Stat()
	if err != nil {
		tempFile.Close()
		return 0, fmt.Errorf("stat export: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tempPath, filepath.Join(p.dir, name)); err != nil {
		return 0, fmt.Errorf("rename export: %w", err)
	}

	success = true
	return fi.Size(), nil
}
