// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/validation"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/cache"
)

var tracer = otel.Tracer("flowgraph.model")

// ---- Sentinel errors ----

var (
	// ErrNotFound indicates no document exists for the reference.
	ErrNotFound = errors.New("model document not found")

	// ErrInvalidRef indicates the reference failed validation and was
	// never resolved against the directory.
	ErrInvalidRef = errors.New("invalid model reference")

	// ErrInvalidDocument indicates the file exists but is not a valid
	// document.
	ErrInvalidDocument = errors.New("invalid model document")

	// ErrDocumentTooLarge indicates the file exceeds MaxDocumentBytes.
	ErrDocumentTooLarge = errors.New("model document exceeds size limit")
)

const (
	// MaxDocumentBytes caps a single document file (64MB). Prepared
	// documents beyond this indicate an unconverted source model.
	MaxDocumentBytes = 64 * 1024 * 1024

	// DefaultCacheCapacity bounds the number of memoized documents.
	DefaultCacheCapacity = 16

	// documentExt is the on-disk document extension. References without
	// it are resolved with it appended.
	documentExt = ".json"
)

// Service resolves a file reference to a loaded document.
//
// Implementations must be safe for concurrent use; the same service
// instance is shared by every run.
type Service interface {
	Load(ctx context.Context, ref string) (*Document, error)
}

// FileService reads prepared JSON documents from a directory.
//
// Loaded documents are memoized through the shared cache, so repeated
// loads of the same reference (the common case when several graphs use
// one model) hit disk once. Invalidate drops a single entry when the
// watcher reports a file change.
type FileService struct {
	dir   string
	cache *cache.Cache[*Document]
	log   *slog.Logger
}

// Option is a functional option for configuring a FileService.
type Option func(*fileServiceOptions)

type fileServiceOptions struct {
	logger        *slog.Logger
	cacheCapacity int
	cacheTTL      time.Duration
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *fileServiceOptions) {
		o.logger = l
	}
}

// WithCacheCapacity bounds the number of memoized documents.
func WithCacheCapacity(n int) Option {
	return func(o *fileServiceOptions) {
		o.cacheCapacity = n
	}
}

// WithCacheTTL bounds document staleness for deployments without a
// watcher. Zero disables expiry.
func WithCacheTTL(d time.Duration) Option {
	return func(o *fileServiceOptions) {
		o.cacheTTL = d
	}
}

// NewFileService creates a FileService rooted at dir.
//
// Description:
//
//	The directory is checked eagerly so a misconfigured deployment
//	fails at startup, not on the first run.
//
// Inputs:
//
//	dir  - Directory holding prepared .json documents. Must exist.
//	opts - Optional configuration.
//
// Outputs:
//
//	*FileService - Ready to serve loads. Never nil on success.
//	error        - Non-nil if dir is empty or not a directory.
func NewFileService(dir string, opts ...Option) (*FileService, error) {
	if dir == "" {
		return nil, fmt.Errorf("model directory must not be empty")
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model directory %q: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("model directory %q is not a directory", dir)
	}

	options := fileServiceOptions{
		logger:        slog.Default(),
		cacheCapacity: DefaultCacheCapacity,
	}
	for _, opt := range opts {
		opt(&options)
	}

	var cacheOpts []cache.Option
	if options.cacheTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithTTL(options.cacheTTL))
	}

	return &FileService{
		dir:   dir,
		cache: cache.New[*Document](options.cacheCapacity, cacheOpts...),
		log:   options.logger,
	}, nil
}

// Dir returns the document directory, for wiring the file watcher.
func (s *FileService) Dir() string {
	return s.dir
}

// Load resolves ref to a document, reading it on first use.
//
// Description:
//
//	The reference is sanitized before touching the filesystem, so a
//	reference can never escape the configured directory. Concurrent
//	loads of the same reference are deduplicated by the cache.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//	ref - Relative file reference, with or without the .json extension.
//
// Outputs:
//
//	*Document - The loaded document. Never nil on success.
//	error     - ErrInvalidRef, ErrNotFound, ErrDocumentTooLarge, or
//	            ErrInvalidDocument (all wrapped), or a read error.
func (s *FileService) Load(ctx context.Context, ref string) (*Document, error) {
	if ctx == nil {
		return nil, fmt.Errorf("model.Load: ctx must not be nil")
	}

	key, err := s.refKey(ref)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "flowgraph.model.Load")
	defer span.End()
	span.SetAttributes(attribute.String("model.ref", key))

	doc, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (*Document, error) {
		return s.read(ctx, key)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("model.elements", doc.ElementCount()))
	return doc, nil
}

// Invalidate drops the cached document for ref, if any. Called by the
// watcher when the underlying file changes. Unresolvable references are
// ignored; they cannot be cached.
func (s *FileService) Invalidate(ref string) {
	key, err := s.refKey(ref)
	if err != nil {
		return
	}
	s.cache.Invalidate(key)
	s.log.Debug("model document invalidated", "ref", key)
}

// List returns the document references under the directory, sorted.
// Nested references use forward slashes regardless of platform.
func (s *FileService) List(ctx context.Context) ([]string, error) {
	if ctx == nil {
		return nil, fmt.Errorf("model.List: ctx must not be nil")
	}

	refs := []string{}
	err := fs.WalkDir(os.DirFS(s.dir), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, documentExt) {
			return nil
		}
		refs = append(refs, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing model directory: %w", err)
	}
	sort.Strings(refs)
	return refs, nil
}

// Stats exposes cache counters for the service health endpoint.
func (s *FileService) Stats() cache.Stats {
	return s.cache.Stats()
}

// refKey sanitizes ref and normalizes it to the on-disk file name, which
// doubles as the cache key.
func (s *FileService) refKey(ref string) (string, error) {
	clean, err := validation.SanitizeFileRef(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	if !strings.HasSuffix(clean, documentExt) {
		clean += documentExt
	}
	return clean, nil
}

// read loads and validates one document file. Only called inside the
// cache's load path, with a sanitized key.
func (s *FileService) read(_ context.Context, key string) (*Document, error) {
	full := filepath.Join(s.dir, filepath.FromSlash(key))

	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading model document %s: %w", key, err)
	}
	if fi.Size() > MaxDocumentBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrDocumentTooLarge, key, fi.Size(), MaxDocumentBytes)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading model document %s: %w", key, err)
	}

	var doc Document
	if err := jsonx.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, key, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, key, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(key, documentExt)
	}

	s.log.Info("model document loaded",
		"ref", key,
		"schema", doc.Schema,
		"elements", len(doc.Elements),
		"spaces", len(doc.Spaces),
		"bytes", fi.Size(),
	)
	return &doc, nil
}
