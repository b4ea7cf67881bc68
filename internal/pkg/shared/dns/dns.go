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

package dns

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// BaseDomain derives the registrable domain for hostname using the
// public suffix list, e.g. sub.evil.example.com -> evil.example.com.
func BaseDomain(hostname string) (string, error) {
	h := strings.ToLower(strings.TrimSuffix(hostname, "."))
	return publicsuffix.EffectiveTLDPlusOne(h)
}
