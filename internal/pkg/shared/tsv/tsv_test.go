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

package tsv

import (
	"reflect"
	"testing"
)

func TestColumn(t *testing.T) {
	content := "1\tbadhost.com\tspam\n2\tworsehost.com\tbotnet\n3\n"
	vals, err := Column(content, 1)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"badhost.com", "worsehost.com"}
	if !reflect.DeepEqual(vals, expected) {
		t.Fatal("expected", expected, "got", vals)
	}

	// no trailing newline on the last row
	vals, err = Column("a\tb\nc\td", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || vals[0] != "a" || vals[1] != "c" {
		t.Fatal("expected first column values, got", vals)
	}

	vals, err = Column("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 0 {
		t.Fatal("expected no values from empty content, got", vals)
	}
}
