// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"fmt"
	"strings"

	diff "github.com/sourcegraph/go-diff/diff"
)

// FormatDiscrepancyDiff renders a one-line-hunk unified diff between
// the claimed and actual definition lines, so a CLI or audit report can
// show *why* a claim disagreed with the source rather than just the
// two line numbers. Returns "" when the lines coincide or either line
// number is not positive.
func FormatDiscrepancyDiff(symbol string, claimedLine, actualLine int, content []byte) string {
	if claimedLine == actualLine || claimedLine <= 0 || actualLine <= 0 {
		return ""
	}
	lines := strings.Split(string(content), "\n")
	at := func(n int) string {
		if n-1 >= 0 && n-1 < len(lines) {
			return lines[n-1]
		}
		return ""
	}

	hunk := &diff.Hunk{
		OrigStartLine: int32(claimedLine),
		OrigLines:     1,
		NewStartLine:  int32(actualLine),
		NewLines:      1,
		Body:          []byte("-" + at(claimedLine) + "\n+" + at(actualLine) + "\n"),
	}
	fd := &diff.FileDiff{
		OrigName: fmt.Sprintf("claimed:%s:%d", symbol, claimedLine),
		NewName:  fmt.Sprintf("actual:%s:%d", symbol, actualLine),
		Hunks:    []*diff.Hunk{hunk},
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return ""
	}
	return string(out)
}
