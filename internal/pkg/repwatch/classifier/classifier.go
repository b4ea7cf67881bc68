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

// Package classifier decides whether fetched reputation content
// indicates maliciousness.
package classifier

import (
	"regexp"

	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
)

// Verdict is the outcome of classifying reputation content
type Verdict int

// Bad patterns take precedence over good ones; content matching
// neither is Unknown and must not be reported as a finding.
const (
	Unknown Verdict = iota
	Malicious
	NotMalicious
)

func (v Verdict) String() string {
	switch v {
	case Malicious:
		return "malicious"
	case NotMalicious:
		return "not malicious"
	}
	return "unknown"
}

// Classify evaluates content against the bad patterns first, then the
// good ones, in config order. The first match wins. Callers must not
// pass empty content; short-circuit to no finding instead.
func Classify(content string, bad []*regexp.Regexp, good []*regexp.Regexp) Verdict {
	for _, rx := range bad {
		if rx.MatchString(content) {
			log.Debug(log.M{Msg: "Found to be bad against bad pattern " + rx.String()})
			return Malicious
		}
	}
	for _, rx := range good {
		if rx.MatchString(content) {
			log.Debug(log.M{Msg: "Found to be good against good pattern " + rx.String()})
			return NotMalicious
		}
	}
	log.Debug(log.M{Msg: "Neither good nor bad, unknown."})
	return Unknown
}
