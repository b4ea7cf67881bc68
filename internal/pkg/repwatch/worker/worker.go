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

// Package worker connects repwatch to the recon host's message queue.
// It receives discovery events, runs them through the reputation
// checks, and publishes findings back. Events are grouped per scan
// run, each run with its own dedup state.
package worker

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/module"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/queue"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/vice/nats"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/xreputation"
	"github.com/repwatch/repwatch/internal/pkg/shared/idgen"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
)

const (
	defaultMaxRuns     = 64
	defaultIdleTimeout = 10 * time.Minute
	reconnectSecond    = 3
)

// Config holds worker runtime settings
type Config struct {
	// Name is stamped as the producing module on findings
	Name string
	// MSQ is the NATS address of the message queue
	MSQ string
	// MSQPrefix is prepended to every subject name
	MSQPrefix string
	// MaxQueue bounds the intake queue, 0 means unbounded
	MaxQueue int
	// MaxRuns bounds the number of concurrently processed scan runs
	MaxRuns int
	// RunIdleTimeout evicts the dedup state of runs idle this long
	RunIdleTimeout time.Duration
	Opts           module.Options
	// Checkers to run. Defaults to the ones bound by xreputation.Init.
	Checkers []xreputation.BoundChecker
	// OnFinding, when set, receives a copy of every published finding
	OnFinding func(event.Event)
}

type runState struct {
	m          *module.Module
	events     chan event.Event
	quit       chan struct{}
	lastActive int64
}

func (rs *runState) touch() {
	atomic.StoreInt64(&rs.lastActive, time.Now().UnixNano())
}

func (rs *runState) idleSince() time.Time {
	return time.Unix(0, atomic.LoadInt64(&rs.lastActive))
}

// Worker is a running repwatch node
type Worker struct {
	cfg       Config
	transport *nats.Transport
	eq        *queue.EventQueue

	eventChan   <-chan event.Event
	stopChan    <-chan bool
	findingChan chan<- event.Event
	errChan     <-chan error

	stopFlag int32

	mu   sync.Mutex
	runs map[string]*runState
	swg  sizedwaitgroup.SizedWaitGroup
}

// Stats is a point-in-time snapshot of worker state
type Stats struct {
	QueueLength int `json:"queue_length"`
	ActiveRuns  int `json:"active_runs"`
	Discarded   int `json:"discarded"`
}

// Start connects to the message queue and begins dispatching events.
// It blocks until the queue connection is established.
func Start(cfg Config) (*Worker, error) {
	if cfg.MaxRuns == 0 {
		cfg.MaxRuns = defaultMaxRuns
	}
	if cfg.RunIdleTimeout == 0 {
		cfg.RunIdleTimeout = defaultIdleTimeout
	}
	if cfg.Checkers == nil {
		cfg.Checkers = xreputation.Checkers()
	}
	w := &Worker{
		cfg:  cfg,
		eq:   queue.New(cfg.MaxQueue),
		runs: make(map[string]*runState),
		swg:  sizedwaitgroup.New(cfg.MaxRuns),
	}

	w.initMsgQueue()

	go w.eq.Dequeue(w.dispatch)
	go w.receiveLoop()
	go w.stopLoop()
	go w.errLoop()
	go w.janitor()
	go w.eq.Reporter(30 * time.Second)
	return w, nil
}

func (w *Worker) initMsgQueue() {
	initMsq := func() (err error) {
		t := nats.New()
		t.NatsAddr = w.cfg.MSQ
		w.eventChan = t.Receive(w.cfg.MSQPrefix + "_discoveries")
		w.errChan = t.ErrChan()
		w.stopChan = t.ReceiveBool(w.cfg.MSQPrefix + "_stop_signals")
		w.findingChan = t.Send(w.cfg.MSQPrefix + "_findings")
		w.transport = t
		select {
		case err = <-w.errChan:
		default:
		}
		return err
	}
	for {
		err := initMsq()
		if err == nil {
			log.Info(log.M{Msg: "Successfully connected to message queue " + w.cfg.MSQ})
			break
		}
		log.Info(log.M{Msg: "Error from message queue " + err.Error()})
		log.Info(log.M{Msg: "Reconnecting in " + strconv.Itoa(reconnectSecond) + " seconds.."})
		time.Sleep(reconnectSecond * time.Second)
	}
}

func (w *Worker) receiveLoop() {
	for evt := range w.eventChan {
		w.eq.Enqueue(evt)
	}
}

func (w *Worker) stopLoop() {
	for b := range w.stopChan {
		if b {
			log.Info(log.M{Msg: "Stop signal received, aborting in-flight runs"})
			atomic.StoreInt32(&w.stopFlag, 1)
		} else {
			log.Info(log.M{Msg: "Stop signal cleared"})
			atomic.StoreInt32(&w.stopFlag, 0)
		}
	}
}

func (w *Worker) errLoop() {
	for err := range w.errChan {
		log.Warn(log.M{Msg: "Error received from message queue: " + err.Error()})
	}
}

func (w *Worker) stopRequested() bool {
	return atomic.LoadInt32(&w.stopFlag) == 1
}

func (w *Worker) notify(finding event.Event) {
	w.findingChan <- finding
	if w.cfg.OnFinding != nil {
		w.cfg.OnFinding(finding)
	}
}

func (w *Worker) dispatch(evt event.Event) {
	if evt.RunID == "" {
		// ad-hoc submissions from the host carry no run ID
		if id, err := idgen.GenerateRunID(); err == nil {
			evt.RunID = id
		}
	}
	if !evt.Valid() {
		log.Warn(log.M{Msg: "Dropping invalid event", Term: evt.Data})
		return
	}
	rs := w.runFor(evt.RunID)
	rs.touch()
	select {
	case rs.events <- evt:
	case <-rs.quit:
		log.Debug(log.M{Msg: "Dropping event for evicted run " + evt.RunID, Term: evt.Data})
	}
}

func (w *Worker) runFor(runID string) *runState {
	w.mu.Lock()
	rs, ok := w.runs[runID]
	w.mu.Unlock()
	if ok {
		return rs
	}

	// blocks until a run slot frees up
	w.swg.Add()

	w.mu.Lock()
	defer w.mu.Unlock()
	if rs, ok := w.runs[runID]; ok {
		w.swg.Done()
		return rs
	}
	rs = &runState{
		m:      module.New(w.cfg.Name, w.cfg.Checkers, w.cfg.Opts, w.notify, w.stopRequested),
		events: make(chan event.Event),
		quit:   make(chan struct{}),
	}
	rs.touch()
	w.runs[runID] = rs
	log.Debug(log.M{Msg: "Starting state for run " + runID})
	go w.runLoop(rs)
	return rs
}

func (w *Worker) runLoop(rs *runState) {
	defer w.swg.Done()
	for {
		select {
		case evt := <-rs.events:
			rs.m.HandleEvent(evt)
			rs.touch()
		case <-rs.quit:
			return
		}
	}
}

// janitor evicts dedup state of runs that have gone idle, so memory
// use stays bounded across many scans
func (w *Worker) janitor() {
	ticker := time.NewTicker(w.cfg.RunIdleTimeout / 2)
	for {
		<-ticker.C
		deadline := time.Now().Add(-w.cfg.RunIdleTimeout)
		w.mu.Lock()
		for id, rs := range w.runs {
			if rs.idleSince().Before(deadline) {
				delete(w.runs, id)
				close(rs.quit)
				log.Debug(log.M{Msg: "Evicted state for idle run " + id})
			}
		}
		w.mu.Unlock()
	}
}

// Stats returns a snapshot of worker state
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	n := len(w.runs)
	w.mu.Unlock()
	return Stats{
		QueueLength: w.eq.Len(),
		ActiveRuns:  n,
		Discarded:   w.eq.Discarded(),
	}
}
