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

// Package check defines the static reputation check descriptors loaded
// from checks_*.json config files.
package check

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/repwatch/repwatch/internal/pkg/shared/fs"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
	"github.com/repwatch/repwatch/internal/pkg/shared/str"
	"github.com/repwatch/repwatch/pkg/reputation"
)

// Mode selects the lookup strategy for a check
type Mode string

// Supported resolution modes
const (
	ModeQuery Mode = "query"
	ModeList  Mode = "list"
)

// List content formats
const (
	FormatLines = ""
	FormatTSV   = "tsv"
)

// Check is one immutable reputation check descriptor
type Check struct {
	Name      string            `json:"name"`
	ID        string            `json:"id"`
	Enabled   bool              `json:"enabled"`
	Mode      Mode              `json:"type"`
	Kinds     []reputation.Kind `json:"checks"`
	URL       string            `json:"url"`
	BadRegex  []string          `json:"badregex,omitempty"`
	GoodRegex []string          `json:"goodregex,omitempty"`
	LineRegex string            `json:"regex,omitempty"`
	Format    string            `json:"format,omitempty"`
	Column    int               `json:"column,omitempty"`

	urlTemplate  Template
	lineTemplate Template
	bad          []*regexp.Regexp
	good         []*regexp.Regexp
}

// Checks is the content of one or more check config files
type Checks struct {
	Checks []Check `json:"reputation_checks"`
}

// CompilePattern compiles a configured content pattern the way the
// classifier evaluates them: case-insensitive, dot matches newline,
// anchored at the start of the content.
func CompilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?is)^(?:` + p + `)`)
}

// Validate checks descriptor consistency and compiles its patterns and
// templates. It must be called before any accessor below.
func (c *Check) Validate() error {
	if c.ID == "" {
		return errors.New("check has no id")
	}
	if c.Name == "" {
		return errors.New("check " + c.ID + " has no name")
	}
	if c.Mode != ModeQuery && c.Mode != ModeList {
		return errors.New("check " + c.ID + " has unknown type " + string(c.Mode))
	}
	if len(c.Kinds) == 0 {
		return errors.New("check " + c.ID + " has no applicable indicator kinds")
	}
	for _, k := range c.Kinds {
		if !reputation.ValidKind(k) {
			return errors.New("check " + c.ID + " has unknown indicator kind " + string(k))
		}
	}
	if c.URL == "" {
		return errors.New("check " + c.ID + " has no url")
	}
	if c.Format != FormatLines && c.Format != FormatTSV {
		return errors.New("check " + c.ID + " has unknown list format " + c.Format)
	}

	if c.Mode == ModeQuery {
		t, err := NewTemplate(c.URL)
		if err != nil {
			return errors.New("check " + c.ID + ": " + err.Error())
		}
		c.urlTemplate = t
	}
	if c.LineRegex != "" {
		t, err := NewTemplate(c.LineRegex)
		if err != nil {
			return errors.New("check " + c.ID + ": " + err.Error())
		}
		c.lineTemplate = t
	}

	c.bad = nil
	for _, p := range c.BadRegex {
		rx, err := CompilePattern(p)
		if err != nil {
			return errors.New("check " + c.ID + " has invalid bad pattern " + p + ": " + err.Error())
		}
		c.bad = append(c.bad, rx)
	}
	c.good = nil
	for _, p := range c.GoodRegex {
		rx, err := CompilePattern(p)
		if err != nil {
			return errors.New("check " + c.ID + " has invalid good pattern " + p + ": " + err.Error())
		}
		c.good = append(c.good, rx)
	}
	return nil
}

// QueryURL returns the lookup URL for target. Only valid for query mode.
func (c *Check) QueryURL(target string) string {
	return c.urlTemplate.Expand(target)
}

// LineTemplate returns the optional line template and whether it is set
func (c *Check) LineTemplate() (Template, bool) {
	return c.lineTemplate, !c.lineTemplate.IsZero()
}

// BadPatterns returns the compiled bad patterns in config order
func (c *Check) BadPatterns() []*regexp.Regexp {
	return c.bad
}

// GoodPatterns returns the compiled good patterns in config order
func (c *Check) GoodPatterns() []*regexp.Regexp {
	return c.good
}

// Supports tells whether the check applies to indicator kind k
func (c *Check) Supports(k reputation.Kind) bool {
	for _, v := range c.Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// LoadFromFile reads and validates check descriptors from all config
// files in confDir matching fileGlob. Invalid entries are skipped with
// a warning. The returned total counts all entries found in the files.
func LoadFromFile(confDir string, fileGlob string) (res Checks, total int, err error) {
	p := path.Join(confDir, fileGlob)
	files, err := filepath.Glob(p)
	if err != nil {
		return res, 0, err
	}

	var ids []string
	for i := range files {
		var ck Checks
		if !fs.FileExist(files[i]) {
			return res, 0, errors.New("Cannot find " + files[i])
		}
		file, err := os.Open(files[i])
		if err != nil {
			return res, 0, err
		}
		byteValue, err := ioutil.ReadAll(file)
		file.Close()
		if err != nil {
			return res, 0, err
		}
		if err := json.Unmarshal(byteValue, &ck); err != nil {
			return res, 0, errors.New("Cannot parse " + files[i] + ": " + err.Error())
		}
		for j := range ck.Checks {
			total++
			c := ck.Checks[j]
			if err := c.Validate(); err != nil {
				log.Warn(log.M{Msg: "Skipping invalid check in " + files[i] + ": " + err.Error()})
				continue
			}
			before := len(ids)
			ids = str.AppendUniq(ids, c.ID)
			if len(ids) == before {
				log.Warn(log.M{Msg: "Skipping duplicated check ID in " + files[i], Check: c.ID})
				continue
			}
			res.Checks = append(res.Checks, c)
		}
	}
	return res, total, nil
}
