// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"bytes"
	"context"
)

// FileContentSource confirms a symbol by literal substring search in
// the [line-3, line+3] window (spec §4.2). It is the weakest source
// (weight 0.1, floored at 0.2 confidence when it is the only
// confirmation) and the only one that applies to every file extension.
type FileContentSource struct{}

// NewFileContentSource constructs the always-applicable fallback source.
func NewFileContentSource() *FileContentSource { return &FileContentSource{} }

func (s *FileContentSource) Name() string { return "file-content" }

func (s *FileContentSource) CanHandle(ext string) bool { return true }

func (s *FileContentSource) Confirm(ctx context.Context, file string, content []byte, symbol string, line int) (Confirmation, bool, error) {
	if line <= 0 || symbol == "" {
		return Confirmation{}, false, nil
	}
	lines := bytes.Split(content, []byte("\n"))
	lo := line - 1 - tolerance
	if lo < 0 {
		lo = 0
	}
	hi := line - 1 + tolerance
	if hi >= len(lines) {
		hi = len(lines) - 1
	}
	if lo > hi || hi < 0 {
		return Confirmation{}, false, nil
	}

	window := bytes.Join(lines[lo:hi+1], []byte("\n"))
	if !bytes.Contains(window, []byte(symbol)) {
		return Confirmation{}, false, nil
	}

	for i := lo; i <= hi; i++ {
		if bytes.Contains(lines[i], []byte(symbol)) {
			return Confirmation{ActualLine: i + 1}, true, nil
		}
	}
	return Confirmation{ActualLine: line}, true, nil
}
