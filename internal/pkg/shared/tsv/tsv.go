// Copyright (c) 2019 Repwatch contributors, All rights reserved.
//
// This file is part of Repwatch.
//
// Repwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation version 3 of the License.
//
// Repwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Repwatch. If not, see <https://www.gnu.org/licenses/>.

// Package tsv extracts column values from tab-separated reputation
// source content.
package tsv

import (
	"strings"

	"github.com/valyala/tsvreader"
)

// Column returns the value of the zero-based column col from every row
// of content. Rows may have a variable number of columns; rows without
// enough columns contribute nothing.
func Column(content string, col int) ([]string, error) {
	// tsvreader requires every row to be newline-terminated
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	r := tsvreader.New(strings.NewReader(content))
	var vals []string
	for r.Next() {
		n := 0
		for r.HasCols() {
			if n == col {
				vals = append(vals, r.String())
			} else {
				r.SkipCol()
			}
			n++
		}
	}
	return vals, r.Error()
}
