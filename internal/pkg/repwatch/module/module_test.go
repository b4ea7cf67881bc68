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

package module

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/xreputation"
	"github.com/repwatch/repwatch/internal/pkg/shared/test"
	"github.com/repwatch/repwatch/pkg/reputation"
)

// fakeChecker flags any value listed in bad, for the declared kinds
type fakeChecker struct {
	name  string
	kinds []reputation.Kind
	bad   map[string]string // value -> reference URL
	fail  bool
	calls int32
}

func (f *fakeChecker) Initialize(b []byte) error { return nil }

func (f *fakeChecker) Supports(k reputation.Kind) bool {
	for _, v := range f.kinds {
		if v == k {
			return true
		}
	}
	return false
}

func (f *fakeChecker) Check(ctx context.Context, ind reputation.Indicator) (bool, []reputation.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return false, nil, context.DeadlineExceeded
	}
	if url, ok := f.bad[ind.Value]; ok {
		return true, []reputation.Result{{Provider: f.name, Term: ind.Value, Reference: url}}, nil
	}
	return false, nil, nil
}

func bind(f *fakeChecker) xreputation.BoundChecker {
	return xreputation.BoundChecker{Checker: f, Name: f.name, ID: "_" + f.name}
}

func discovery(typ string, data string) event.Event {
	return event.Event{
		EventID:   "ev1",
		RunID:     "run1",
		Type:      typ,
		Data:      data,
		Module:    "recon",
		Timestamp: "2019-01-01T00:00:00Z",
	}
}

type sink struct {
	events []event.Event
}

func (s *sink) notify(e event.Event) {
	s.events = append(s.events, e)
}

func TestRoutingAndFindingText(t *testing.T) {
	if _, err := test.DirEnv(false); err != nil {
		t.Fatal(err)
	}

	ipChk := &fakeChecker{
		name:  "BadIPs",
		kinds: []reputation.Kind{reputation.KindIP},
		bad:   map[string]string{"203.0.113.7": "http://feeds.example.com/badips"},
	}
	s := &sink{}
	m := New("repwatch", []xreputation.BoundChecker{bind(ipChk)}, DefaultOptions(), s.notify, nil)

	m.HandleEvent(discovery(event.TypeIPAddr, "203.0.113.7"))
	if len(s.events) != 1 {
		t.Fatal("expected 1 finding, got", len(s.events))
	}
	f := s.events[0]
	if f.Type != event.TypeMaliciousIPAddr {
		t.Fatal("unexpected finding type", f.Type)
	}
	expected := "BadIPs [203.0.113.7]\n<SFURL>http://feeds.example.com/badips</SFURL>"
	if f.Data != expected {
		t.Fatalf("unexpected finding text %q", f.Data)
	}
	if f.RunID != "run1" || f.SourceID != "ev1" || f.Module != "repwatch" {
		t.Fatal("finding does not reference its source event", f)
	}
	if f.EventID == "" || f.Timestamp == "" {
		t.Fatal("finding is missing identity fields", f)
	}

	// same target again within the run is skipped
	m.HandleEvent(discovery(event.TypeIPAddr, "203.0.113.7"))
	if len(s.events) != 1 {
		t.Fatal("expected dedup to suppress the second finding")
	}
	if n := atomic.LoadInt32(&ipChk.calls); n != 1 {
		t.Fatal("expected 1 lookup, got", n)
	}

	// a clean target produces nothing
	m.HandleEvent(discovery(event.TypeIPAddr, "203.0.113.8"))
	if len(s.events) != 1 {
		t.Fatal("expected no finding for a clean target")
	}

	// unwatched types are ignored without a lookup
	m.HandleEvent(discovery("RAW_RIR_DATA", "whatever"))
	if n := atomic.LoadInt32(&ipChk.calls); n != 2 {
		t.Fatal("expected no lookup for unwatched type, calls:", n)
	}
}

func TestAffiliateRouting(t *testing.T) {
	if _, err := test.DirEnv(false); err != nil {
		t.Fatal(err)
	}

	chk := &fakeChecker{
		name:  "BadIPs",
		kinds: []reputation.Kind{reputation.KindIP},
		bad:   map[string]string{"203.0.113.7": "http://feeds.example.com/badips"},
	}
	s := &sink{}
	m := New("repwatch", []xreputation.BoundChecker{bind(chk)}, DefaultOptions(), s.notify, nil)

	m.HandleEvent(discovery(event.TypeAffiliateIPAddr, "203.0.113.7"))
	if len(s.events) != 1 || s.events[0].Type != event.TypeMaliciousAffiliateIPAddr {
		t.Fatal("expected an affiliate finding, got", s.events)
	}
}

func TestGates(t *testing.T) {
	if _, err := test.DirEnv(false); err != nil {
		t.Fatal(err)
	}

	chk := &fakeChecker{
		name:  "BadAll",
		kinds: []reputation.Kind{reputation.KindIP, reputation.KindDomain, reputation.KindNetblock},
		bad: map[string]string{
			"203.0.113.7":     "http://feeds.example.com/all",
			"evil.com":        "http://feeds.example.com/all",
			"203.0.113.0/24":  "http://feeds.example.com/all",
			"203.0.113.64/28": "http://feeds.example.com/all",
		},
	}
	s := &sink{}
	// everything optional turned off
	m := New("repwatch", []xreputation.BoundChecker{bind(chk)}, Options{}, s.notify, nil)

	m.HandleEvent(discovery(event.TypeAffiliateIPAddr, "203.0.113.7"))
	m.HandleEvent(discovery(event.TypeCoHostedSite, "evil.com"))
	m.HandleEvent(discovery(event.TypeNetblockOwner, "203.0.113.0/24"))
	m.HandleEvent(discovery(event.TypeNetblockMember, "203.0.113.64/28"))
	if len(s.events) != 0 {
		t.Fatal("expected gated events to produce no findings, got", s.events)
	}
	if n := atomic.LoadInt32(&chk.calls); n != 0 {
		t.Fatal("expected gated events to perform no lookups, calls:", n)
	}

	// a gated event still marks its target as seen
	m.HandleEvent(discovery(event.TypeIPAddr, "203.0.113.7"))
	if len(s.events) != 0 {
		t.Fatal("expected target of a gated event to stay deduplicated")
	}

	// with the gates open everything is checked
	s2 := &sink{}
	m2 := New("repwatch", []xreputation.BoundChecker{bind(chk)},
		Options{CheckAffiliates: true, CheckCohosts: true, CheckNetblocks: true, CheckSubnets: true}, s2.notify, nil)
	m2.HandleEvent(discovery(event.TypeAffiliateIPAddr, "203.0.113.7"))
	m2.HandleEvent(discovery(event.TypeCoHostedSite, "evil.com"))
	m2.HandleEvent(discovery(event.TypeNetblockOwner, "203.0.113.0/24"))
	m2.HandleEvent(discovery(event.TypeNetblockMember, "203.0.113.64/28"))
	if len(s2.events) != 4 {
		t.Fatal("expected 4 findings, got", len(s2.events))
	}
	types := map[string]bool{}
	for _, e := range s2.events {
		types[e.Type] = true
	}
	for _, want := range []string{
		event.TypeMaliciousAffiliateIPAddr,
		event.TypeMaliciousCoHost,
		event.TypeMaliciousNetblock,
		event.TypeMaliciousSubnet,
	} {
		if !types[want] {
			t.Fatal("missing finding type", want)
		}
	}
}

func TestPrivateAddressSkip(t *testing.T) {
	if _, err := test.DirEnv(false); err != nil {
		t.Fatal(err)
	}

	chk := &fakeChecker{
		name:  "BadIPs",
		kinds: []reputation.Kind{reputation.KindIP},
		bad:   map[string]string{"192.168.1.1": "http://feeds.example.com/badips"},
	}
	s := &sink{}
	m := New("repwatch", []xreputation.BoundChecker{bind(chk)}, DefaultOptions(), s.notify, nil)

	m.HandleEvent(discovery(event.TypeIPAddr, "192.168.1.1"))
	if len(s.events) != 0 {
		t.Fatal("expected private address to be skipped")
	}
	if n := atomic.LoadInt32(&chk.calls); n != 0 {
		t.Fatal("expected no lookup for a private address, calls:", n)
	}

	opts := DefaultOptions()
	opts.CheckPrivateIP = true
	m2 := New("repwatch", []xreputation.BoundChecker{bind(chk)}, opts, s.notify, nil)
	m2.HandleEvent(discovery(event.TypeIPAddr, "192.168.1.1"))
	if len(s.events) != 1 {
		t.Fatal("expected private address to be checked when enabled")
	}
}

func TestCooperativeStop(t *testing.T) {
	if _, err := test.DirEnv(false); err != nil {
		t.Fatal(err)
	}

	mk := func(name string) *fakeChecker {
		return &fakeChecker{
			name:  name,
			kinds: []reputation.Kind{reputation.KindIP},
			bad:   map[string]string{"203.0.113.7": "http://feeds.example.com/" + name},
		}
	}
	c1, c2, c3 := mk("one"), mk("two"), mk("three")

	var stopped int32
	stop := func() bool { return atomic.LoadInt32(&stopped) == 1 }

	s := &sink{}
	m := New("repwatch", []xreputation.BoundChecker{bind(c1), bind(c2), bind(c3)},
		DefaultOptions(), s.notify, stop)

	atomic.StoreInt32(&stopped, 1)
	m.HandleEvent(discovery(event.TypeIPAddr, "203.0.113.7"))

	// stop is polled after the first lookup, so the remaining two
	// checks never run and no finding is published
	if n := atomic.LoadInt32(&c1.calls); n != 1 {
		t.Fatal("expected first check to run, calls:", n)
	}
	if atomic.LoadInt32(&c2.calls) != 0 || atomic.LoadInt32(&c3.calls) != 0 {
		t.Fatal("expected remaining checks to be skipped after stop")
	}
	if len(s.events) != 0 {
		t.Fatal("expected no finding after stop request")
	}
}

func TestCheckerErrorDegradesToNoFinding(t *testing.T) {
	if _, err := test.DirEnv(false); err != nil {
		t.Fatal(err)
	}

	failing := &fakeChecker{
		name:  "down",
		kinds: []reputation.Kind{reputation.KindIP},
		fail:  true,
	}
	working := &fakeChecker{
		name:  "up",
		kinds: []reputation.Kind{reputation.KindIP},
		bad:   map[string]string{"203.0.113.7": "http://feeds.example.com/up"},
	}
	s := &sink{}
	m := New("repwatch", []xreputation.BoundChecker{bind(failing), bind(working)},
		DefaultOptions(), s.notify, nil)

	m.HandleEvent(discovery(event.TypeIPAddr, "203.0.113.7"))
	if len(s.events) != 1 {
		t.Fatal("expected the working check to still produce a finding")
	}
	if !strings.Contains(s.events[0].Data, "up [203.0.113.7]") {
		t.Fatal("unexpected finding text", s.events[0].Data)
	}
}

func TestWatchedAndProducedEvents(t *testing.T) {
	if len(WatchedEvents()) != 9 {
		t.Fatal("expected 9 watched event types")
	}
	if len(ProducedEvents()) != 8 {
		t.Fatal("expected 8 produced finding types")
	}
}
