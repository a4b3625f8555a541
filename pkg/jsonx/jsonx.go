// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jsonx is the JSON codec used across the project.
//
// All serialization goes through goccy/go-json. Types that matter for
// interop (RawMessage) alias the standard library so callers can mix
// both packages freely.
package jsonx

import (
	stdjson "encoding/json"
	"io"

	gjson "github.com/goccy/go-json"
)

// RawMessage aliases the standard library type so struct fields declared
// against encoding/json stay compatible.
type RawMessage = stdjson.RawMessage

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

// MarshalIndent encodes v as indented JSON.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// Valid reports whether data is well-formed JSON.
func Valid(data []byte) bool {
	return gjson.Valid(data)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *gjson.Encoder {
	return gjson.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *gjson.Decoder {
	return gjson.NewDecoder(r)
}

// Clone deep-copies v through a JSON round trip. The copy shares no
// mutable state with the original. Values that do not survive JSON
// (channels, funcs) return an error.
func Clone[T any](v T) (T, error) {
	var out T
	data, err := gjson.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := gjson.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Remap converts src into dst through a JSON round trip. Used to decode
// loosely-typed configuration maps into concrete structs.
func Remap(src, dst any) error {
	data, err := gjson.Marshal(src)
	if err != nil {
		return err
	}
	return gjson.Unmarshal(data, dst)
}
