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

// Package queue buffers discovery events between the transport and
// the reputation worker.
package queue

import (
	"strconv"
	"sync"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
)

// EventQueue decouples event intake from the lookup rate. A bounded
// queue discards on overflow so slow reputation sources can never
// stall the transport.
type EventQueue struct {
	q          goconcurrentqueue.Queue
	mu         sync.RWMutex
	discarded  int
	lastErrMsg string
	oneTimeRun bool
}

// New returns an EventQueue. maxLength 0 makes it unbounded.
func New(maxLength int) *EventQueue {
	eq := EventQueue{}
	if maxLength > 0 {
		eq.q = goconcurrentqueue.NewFixedFIFO(maxLength)
	} else {
		eq.q = goconcurrentqueue.NewFIFO()
	}
	return &eq
}

// Enqueue adds evt, discarding it when the queue cannot accept more
func (eq *EventQueue) Enqueue(evt event.Event) {
	if err := eq.q.Enqueue(evt); err != nil {
		eq.mu.Lock()
		eq.discarded++
		eq.lastErrMsg = err.Error()
		eq.mu.Unlock()
	}
}

// Dequeue delivers queued events to deliver in arrival order. It
// blocks forever, so run it from a dedicated goroutine.
func (eq *EventQueue) Dequeue(deliver func(event.Event)) {
	for {
		res, err := eq.q.DequeueOrWaitForNextElement()
		if err != nil {
			log.Warn(log.M{Msg: "Error occurred while dequeueing event: " + err.Error()})
			time.Sleep(100 * time.Millisecond)
			continue
		}
		evt, ok := res.(event.Event)
		if !ok {
			continue
		}
		deliver(evt)
	}
}

// Len returns the number of queued events
func (eq *EventQueue) Len() int {
	return eq.q.GetLen()
}

// Discarded returns the number of events dropped since the last report
func (eq *EventQueue) Discarded() int {
	eq.mu.RLock()
	defer eq.mu.RUnlock()
	return eq.discarded
}

// Reporter regularly prints out a queue overview
func (eq *EventQueue) Reporter(d time.Duration) {
	ticker := time.NewTicker(d)
	for {
		<-ticker.C
		eq.mu.Lock()
		n := eq.discarded
		msg := eq.lastErrMsg
		eq.discarded = 0
		eq.mu.Unlock()
		log.Info(log.M{Msg: "Queue length: " + strconv.Itoa(eq.q.GetLen())})
		if n != 0 {
			log.Warn(log.M{Msg: "Queue discarded: " + strconv.Itoa(n) + " events. Reason: " + msg})
		}
		if eq.oneTimeRun {
			ticker.Stop()
			return
		}
	}
}
