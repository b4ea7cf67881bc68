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

package check

import (
	"encoding/json"
	"errors"
	"strings"
)

// Placeholder marks the substitution point in URL and line templates
const Placeholder = "{target}"

// Template is a string containing a single named placeholder, validated
// at configuration-load time instead of first use
type Template struct {
	raw string
}

// NewTemplate validates s and returns a Template
func NewTemplate(s string) (Template, error) {
	if !strings.Contains(s, Placeholder) {
		return Template{}, errors.New("template is missing the " + Placeholder + " placeholder: " + s)
	}
	return Template{raw: s}, nil
}

// Expand replaces the placeholder with value
func (t Template) Expand(value string) string {
	return strings.Replace(t.raw, Placeholder, value, -1)
}

// IsZero tells whether the template was left unset
func (t Template) IsZero() bool {
	return t.raw == ""
}

func (t Template) String() string {
	return t.raw
}

// MarshalJSON implements json.Marshaler
func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.raw)
}

// UnmarshalJSON implements json.Unmarshaler. Validation happens in
// Validate so that config files report all errors in one place.
func (t *Template) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &t.raw)
}
