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

// Package module routes discovery events to the configured reputation
// checks and publishes a finding for every check that flags the
// target. Each scan run gets its own Module so that targets are
// checked at most once per run.
package module

import (
	"sync"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/xreputation"
	"github.com/repwatch/repwatch/internal/pkg/shared/idgen"
	"github.com/repwatch/repwatch/internal/pkg/shared/ip"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
	"github.com/repwatch/repwatch/pkg/reputation"
)

// Options control which discovery event types are checked
type Options struct {
	CheckAffiliates bool
	CheckCohosts    bool
	CheckNetblocks  bool
	CheckSubnets    bool
	CheckPrivateIP  bool
}

// DefaultOptions returns the options applied when none are configured
func DefaultOptions() Options {
	return Options{CheckAffiliates: true}
}

// NotifyFunc receives finding events produced by a Module
type NotifyFunc func(event.Event)

// StopFunc reports whether the current run has been asked to stop
type StopFunc func() bool

type routeEntry struct {
	kind    reputation.Kind
	finding string
}

// routes maps every consumed discovery event type to the indicator
// kind looked up and the finding type produced on a match
var routes = map[string]routeEntry{
	event.TypeIPAddr:           {reputation.KindIP, event.TypeMaliciousIPAddr},
	event.TypeAffiliateIPAddr:  {reputation.KindIP, event.TypeMaliciousAffiliateIPAddr},
	event.TypeBGPASOwner:       {reputation.KindASN, event.TypeMaliciousASN},
	event.TypeBGPASMember:      {reputation.KindASN, event.TypeMaliciousASN},
	event.TypeInternetName:     {reputation.KindDomain, event.TypeMaliciousInternetName},
	event.TypeAffiliateIntName: {reputation.KindDomain, event.TypeMaliciousAffiliateIntName},
	event.TypeCoHostedSite:     {reputation.KindDomain, event.TypeMaliciousCoHost},
	event.TypeNetblockOwner:    {reputation.KindNetblock, event.TypeMaliciousNetblock},
	event.TypeNetblockMember:   {reputation.KindNetblock, event.TypeMaliciousSubnet},
}

// WatchedEvents returns the discovery event types the module consumes
func WatchedEvents() []string {
	var res []string
	for k := range routes {
		res = append(res, k)
	}
	return res
}

// ProducedEvents returns the finding event types the module may emit
func ProducedEvents() []string {
	seen := map[string]bool{}
	var res []string
	for _, v := range routes {
		if !seen[v.finding] {
			seen[v.finding] = true
			res = append(res, v.finding)
		}
	}
	return res
}

// Module holds the dedup state of one scan run
type Module struct {
	name     string
	checkers []xreputation.BoundChecker
	opts     Options
	notify   NotifyFunc
	stop     StopFunc

	mu   sync.Mutex
	seen map[string]bool
}

// New returns a Module with fresh dedup state. notify must not be nil,
// stop may be.
func New(name string, checkers []xreputation.BoundChecker, opts Options, notify NotifyFunc, stop StopFunc) *Module {
	return &Module{
		name:     name,
		checkers: checkers,
		opts:     opts,
		notify:   notify,
		stop:     stop,
		seen:     make(map[string]bool),
	}
}

func (m *Module) stopped() bool {
	return m.stop != nil && m.stop()
}

// HandleEvent runs evt's target through every applicable check. The
// target is marked as seen before any gate so that a gated event
// isn't re-checked when it reappears with another type.
func (m *Module) HandleEvent(evt event.Event) {
	log.Debug(log.M{Msg: "Received event " + evt.Type + " from " + evt.Module, Term: evt.Data})

	m.mu.Lock()
	if m.seen[evt.Data] {
		m.mu.Unlock()
		log.Debug(log.M{Msg: "Skipping " + evt.Data + ", already checked."})
		return
	}
	m.seen[evt.Data] = true
	m.mu.Unlock()

	if evt.Type == event.TypeCoHostedSite && !m.opts.CheckCohosts {
		return
	}
	if evt.Type == event.TypeAffiliateIPAddr && !m.opts.CheckAffiliates {
		return
	}
	if evt.Type == event.TypeNetblockOwner && !m.opts.CheckNetblocks {
		return
	}
	if evt.Type == event.TypeNetblockMember && !m.opts.CheckSubnets {
		return
	}

	r, ok := routes[evt.Type]
	if !ok {
		log.Debug(log.M{Msg: "Ignoring unwatched event type " + evt.Type})
		return
	}

	if r.kind == reputation.KindIP && !m.opts.CheckPrivateIP {
		if priv, err := ip.IsPrivateIP(evt.Data); err == nil && priv {
			log.Debug(log.M{Msg: "Skipping private address " + evt.Data})
			return
		}
	}

	ind := reputation.Indicator{Value: evt.Data, Kind: r.kind}
	for _, v := range m.checkers {
		if !v.Supports(r.kind) {
			continue
		}
		found, results, err := xreputation.Lookup(v, ind)
		if m.stopped() {
			log.Debug(log.M{Msg: "Stop requested, aborting remaining checks", Term: evt.Data})
			return
		}
		if err != nil {
			log.Warn(log.M{Msg: "Error received from reputation check " + v.Name + ": " + err.Error(), Check: v.ID, Term: evt.Data})
			continue
		}
		if !found || len(results) == 0 {
			continue
		}
		m.emit(evt, r.finding, v.Name, results[0].Reference)
	}
}

func (m *Module) emit(src event.Event, findingType string, checkName string, url string) {
	id, err := idgen.GenerateID()
	if err != nil {
		log.Warn(log.M{Msg: "Cannot generate finding ID: " + err.Error(), Term: src.Data})
		return
	}
	text := checkName + " [" + src.Data + "]\n" + "<SFURL>" + url + "</SFURL>"
	m.notify(event.Event{
		EventID:   id,
		RunID:     src.RunID,
		Type:      findingType,
		Data:      text,
		Module:    m.name,
		SourceID:  src.EventID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
