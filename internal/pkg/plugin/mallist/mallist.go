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

// Package mallist implements the bulk-list reputation checker. The
// source URL returns the complete list of bad entries, which is cached
// and matched locally against the indicator.
package mallist

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/check"
	"github.com/repwatch/repwatch/internal/pkg/shared/cache"
	"github.com/repwatch/repwatch/internal/pkg/shared/dns"
	"github.com/repwatch/repwatch/internal/pkg/shared/fetch"
	"github.com/repwatch/repwatch/internal/pkg/shared/ip"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
	"github.com/repwatch/repwatch/internal/pkg/shared/str"
	"github.com/repwatch/repwatch/internal/pkg/shared/tsv"
	"github.com/repwatch/repwatch/pkg/reputation"
)

func init() {
	reputation.RegisterExtension(func() reputation.Checker { return &List{} }, string(check.ModeList))
}

// cacheKeyPrefix is prepended to the check ID to form the cache key
// for the downloaded list content
const cacheKeyPrefix = "sfmal_"

// ipMatcher replaces the line template placeholder when scanning a
// list for netblock members
const ipMatcher = `(\d+\.\d+\.\d+\.\d+)`

var (
	lists     *cache.Cache
	listsOnce sync.Once
)

// list content is cached once per process so that checks sharing a
// cache period don't each hold a copy
func listCache(lifetimeMinutes int) (*cache.Cache, error) {
	var err error
	listsOnce.Do(func() {
		lists, err = cache.New("mallist", lifetimeMinutes, 64)
	})
	if err != nil {
		return nil, err
	}
	if lists == nil {
		return nil, errors.New("list cache is not initialized")
	}
	return lists, nil
}

// Config defines one list check and its fetch and cache settings
type Config struct {
	Check        check.Check `json:"check"`
	FetchTimeout int         `json:"fetch_timeout"`
	UserAgent    string      `json:"useragent"`
	MaxRPS       int         `json:"max_rps"`
	CacheMinutes int         `json:"cache_minutes"`
}

// List is a reputation plugin that downloads a bulk list of bad
// entries and matches indicators against it
type List struct {
	Cfg Config `json:"cfg"`
	cl  *fetch.Client
}

// Initialize implement iface
func (l *List) Initialize(b []byte) error {
	if err := json.Unmarshal(b, &l.Cfg); err != nil {
		return err
	}
	// compiled patterns and templates don't survive JSON
	if err := l.Cfg.Check.Validate(); err != nil {
		return err
	}
	l.cl = fetch.New(time.Duration(l.Cfg.FetchTimeout)*time.Second, l.Cfg.UserAgent, l.Cfg.MaxRPS)
	return nil
}

// Supports implement iface
func (l *List) Supports(k reputation.Kind) bool {
	return l.Cfg.Check.Supports(k)
}

// Check implement iface
func (l *List) Check(ctx context.Context, ind reputation.Indicator) (found bool, results []reputation.Result, err error) {
	if !l.Supports(ind.Kind) {
		return
	}

	content, err := l.content(ctx)
	if err != nil {
		return
	}

	var hit bool
	switch ind.Kind {
	case reputation.KindNetblock:
		hit, err = l.matchNetblock(content, ind.Value)
	case reputation.KindDomain:
		hit = l.matchDomain(content, ind.Value)
	default:
		hit = l.matchExact(content, ind.Value)
	}
	if err != nil {
		return false, nil, err
	}
	if hit {
		results = append(results, reputation.Result{Provider: l.Cfg.Check.Name, Term: ind.Value, Reference: l.Cfg.Check.URL})
		found = true
	}
	return
}

// content returns the list body, from cache when fresh enough,
// otherwise from the source URL
func (l *List) content(ctx context.Context) (string, error) {
	c, err := listCache(l.Cfg.CacheMinutes)
	if err != nil {
		return "", err
	}
	key := cacheKeyPrefix + l.Cfg.Check.ID
	maxAge := time.Duration(l.Cfg.CacheMinutes) * time.Minute
	if b, err := c.GetMaxAge(key, maxAge); err == nil {
		return string(b), nil
	}
	b, err := l.cl.Get(ctx, l.Cfg.Check.URL)
	if err != nil {
		log.Warn(log.M{Msg: "Unable to fetch " + l.Cfg.Check.URL + ": " + err.Error(), Check: l.Cfg.Check.ID})
		return "", err
	}
	c.Set(key, b)
	return string(b), nil
}

// lines returns the matchable entries of the list, extracting the
// configured column first when the source is tab-separated
func (l *List) lines(content string) []string {
	if l.Cfg.Check.Format == check.FormatTSV {
		vals, err := tsv.Column(content, l.Cfg.Check.Column)
		if err != nil {
			log.Warn(log.M{Msg: "Error reading TSV list content: " + err.Error(), Check: l.Cfg.Check.ID})
		}
		return vals
	}
	return str.Lines(content)
}

// matchNetblock reports whether any IP on the list falls inside the
// cidr target. Lines that cannot be parsed as an address are skipped.
func (l *List) matchNetblock(content string, cidr string) (bool, error) {
	nb, err := ip.NewNetblock(cidr)
	if err != nil {
		return false, err
	}

	var candidates []string
	if t, ok := l.Cfg.Check.LineTemplate(); ok {
		rx, err := regexp.Compile(`(?i)` + t.Expand(ipMatcher))
		if err != nil {
			log.Warn(log.M{Msg: "Cannot build address matcher from line pattern: " + err.Error(), Check: l.Cfg.Check.ID})
			return false, nil
		}
		for _, line := range l.lines(content) {
			if grp := rx.FindStringSubmatch(line); grp != nil {
				candidates = append(candidates, grp[1])
			}
		}
	} else {
		candidates = l.lines(content)
	}

	for _, addr := range candidates {
		if len(addr) < 8 || strings.HasPrefix(addr, "#") {
			continue
		}
		addr = strings.TrimSpace(addr)
		in, err := nb.Contains(addr)
		if err != nil {
			log.Debug(log.M{Msg: "Skipping unparseable list entry: " + err.Error(), Check: l.Cfg.Check.ID})
			continue
		}
		if in {
			log.Debug(log.M{Msg: addr + " found within netblock " + cidr, Check: l.Cfg.Check.ID, Term: cidr})
			return true, nil
		}
	}
	return false, nil
}

// matchDomain looks for the hostname or its registrable base domain on
// the list
func (l *List) matchDomain(content string, target string) bool {
	base, err := dns.BaseDomain(target)
	if err != nil {
		log.Debug(log.M{Msg: "Cannot derive base domain of " + target + ": " + err.Error(), Check: l.Cfg.Check.ID})
		return false
	}

	t, ok := l.Cfg.Check.LineTemplate()
	if !ok {
		for _, line := range l.lines(content) {
			if line == target || line == base {
				log.Debug(log.M{Msg: target + "/" + base + " found in list", Check: l.Cfg.Check.ID, Term: target})
				return true
			}
		}
		return false
	}

	rxTgt, err := check.CompilePattern(t.Expand(target))
	if err != nil {
		log.Debug(log.M{Msg: "Error building line matcher: " + err.Error(), Check: l.Cfg.Check.ID})
		return false
	}
	rxBase, err := check.CompilePattern(t.Expand(base))
	if err != nil {
		log.Debug(log.M{Msg: "Error building line matcher: " + err.Error(), Check: l.Cfg.Check.ID})
		return false
	}
	for _, line := range l.lines(content) {
		if rxTgt.MatchString(line) || rxBase.MatchString(line) {
			log.Debug(log.M{Msg: target + "/" + base + " found in list", Check: l.Cfg.Check.ID, Term: target})
			return true
		}
	}
	return false
}

// matchExact looks for the target itself on the list, used for IP and
// ASN indicators
func (l *List) matchExact(content string, target string) bool {
	t, ok := l.Cfg.Check.LineTemplate()
	if !ok {
		for _, line := range l.lines(content) {
			if line == target {
				log.Debug(log.M{Msg: target + " found in list", Check: l.Cfg.Check.ID, Term: target})
				return true
			}
		}
		return false
	}

	rx, err := check.CompilePattern(t.Expand(target))
	if err != nil {
		log.Debug(log.M{Msg: "Error building line matcher: " + err.Error(), Check: l.Cfg.Check.ID})
		return false
	}
	for _, line := range l.lines(content) {
		if rx.MatchString(line) {
			log.Debug(log.M{Msg: target + " found in list", Check: l.Cfg.Check.ID, Term: target})
			return true
		}
	}
	return false
}
