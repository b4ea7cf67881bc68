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

package worker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/module"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/vice/nats"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/xreputation"
	"github.com/repwatch/repwatch/internal/pkg/shared/test"
	"github.com/repwatch/repwatch/pkg/reputation"

	gnatsd "github.com/nats-io/nats-server/v2/server"
)

// DefaultTestOptions are default options for the unit tests.
var DefaultTestOptions = gnatsd.Options{
	Host:           "127.0.0.1",
	Port:           4225,
	NoLog:          true,
	NoSigs:         true,
	MaxControlLine: 256,
}

// RunDefaultServer starts a new Go routine based server using the default options
func RunDefaultServer() *gnatsd.Server {
	s := gnatsd.New(&DefaultTestOptions)
	if s == nil {
		panic("No NATS Server object returned.")
	}
	go s.Start()
	if !s.ReadyForConnections(3 * time.Second) {
		panic("Unable to start NATS Server in Go Routine")
	}
	return s
}

type fakeChecker struct{}

func (f fakeChecker) Initialize(b []byte) error       { return nil }
func (f fakeChecker) Supports(k reputation.Kind) bool { return k == reputation.KindIP }
func (f fakeChecker) Check(ctx context.Context, ind reputation.Indicator) (bool, []reputation.Result, error) {
	if ind.Value == "203.0.113.7" {
		return true, []reputation.Result{{Provider: "Fake", Term: ind.Value, Reference: "http://feeds.example.com/bad"}}, nil
	}
	return false, nil, nil
}

func discovery(id, runID, data string) event.Event {
	return event.Event{
		EventID:   id,
		RunID:     runID,
		Type:      event.TypeIPAddr,
		Data:      data,
		Module:    "recon",
		Timestamp: "2019-01-01T00:00:00Z",
	}
}

func TestWorker(t *testing.T) {
	_, err := test.DirEnv(true)
	if err != nil {
		t.Fatal(err)
	}

	s := RunDefaultServer()
	defer s.Shutdown()

	msq := "nats://" + DefaultTestOptions.Host + ":" + strconv.Itoa(DefaultTestOptions.Port)

	checkers := []xreputation.BoundChecker{
		{Checker: fakeChecker{}, Name: "Fake", ID: "_fake"},
	}

	w, err := Start(Config{
		Name:           "repwatch",
		MSQ:            msq,
		MSQPrefix:      "repwatch",
		MaxQueue:       100,
		MaxRuns:        4,
		RunIdleTimeout: 2 * time.Second,
		Opts:           module.DefaultOptions(),
		Checkers:       checkers,
	})
	if err != nil {
		t.Fatal(err)
	}

	// recon host side of the queue
	host := nats.New()
	host.NatsAddr = msq
	sendCh := host.Send("repwatch_discoveries")
	findingCh := host.Receive("repwatch_findings")
	stopCh := host.SendBool("repwatch_stop_signals")

	recvFinding := func() (event.Event, bool) {
		select {
		case e := <-findingCh:
			return e, true
		case <-time.After(10 * time.Second):
			return event.Event{}, false
		}
	}

	sendCh <- discovery("ev1", "run1", "203.0.113.7")
	f, ok := recvFinding()
	if !ok {
		t.Fatal("timed out waiting for finding")
	}
	if f.Type != event.TypeMaliciousIPAddr || f.SourceID != "ev1" || f.RunID != "run1" {
		t.Fatal("unexpected finding", f)
	}

	// duplicate within the same run is suppressed
	sendCh <- discovery("ev2", "run1", "203.0.113.7")
	// same target in a different run is checked again
	sendCh <- discovery("ev3", "run2", "203.0.113.7")
	f, ok = recvFinding()
	if !ok {
		t.Fatal("timed out waiting for second run's finding")
	}
	if f.RunID != "run2" || f.SourceID != "ev3" {
		t.Fatal("expected finding from run2, got", f)
	}
	select {
	case f = <-findingCh:
		t.Fatal("expected duplicate to produce no finding, got", f)
	case <-time.After(2 * time.Second):
	}

	if st := w.Stats(); st.ActiveRuns != 2 {
		t.Fatal("expected 2 active runs, got", st.ActiveRuns)
	}

	// stop signal suppresses further findings
	stopCh <- true
	time.Sleep(time.Second)
	if !w.stopRequested() {
		t.Fatal("expected stop flag to be set")
	}
	sendCh <- discovery("ev4", "run3", "203.0.113.7")
	select {
	case f = <-findingCh:
		t.Fatal("expected no finding after stop signal, got", f)
	case <-time.After(2 * time.Second):
	}

	stopCh <- false
	time.Sleep(time.Second)
	if w.stopRequested() {
		t.Fatal("expected stop flag to be cleared")
	}

	// idle runs are evicted
	time.Sleep(4 * time.Second)
	if st := w.Stats(); st.ActiveRuns != 0 {
		t.Fatal("expected idle runs to be evicted, got", st.ActiveRuns)
	}

	// events without a run ID get a generated one
	w.dispatch(event.Event{
		EventID:   "ev5",
		Type:      event.TypeIPAddr,
		Data:      "203.0.113.7",
		Module:    "recon",
		Timestamp: "2019-01-01T00:00:00Z",
	})
	f, ok = recvFinding()
	if !ok {
		t.Fatal("timed out waiting for ad-hoc finding")
	}
	if f.SourceID != "ev5" || f.RunID == "" {
		t.Fatal("expected ad-hoc finding with a generated run ID, got", f)
	}

	// invalid events are dropped before dispatch
	w.dispatch(event.Event{})
}
