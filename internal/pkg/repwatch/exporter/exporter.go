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

// Package exporter ships findings to an Elasticsearch index.
package exporter

import (
	"context"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"

	elastic7 "github.com/olivere/elastic/v7"
)

const (
	exportTimeout = 10 * time.Second
	queueLength   = 1024
)

// Exporter indexes finding events into Elasticsearch in the background
type Exporter struct {
	client *elastic7.Client
	index  string
	ch     chan event.Event
}

// New connects to the Elasticsearch instance at esURL and starts the
// background indexer
func New(esURL, index string) (*Exporter, error) {
	cl, err := elastic7.NewSimpleClient(elastic7.SetURL(esURL))
	if err != nil {
		return nil, err
	}
	x := &Exporter{
		client: cl,
		index:  index,
		ch:     make(chan event.Event, queueLength),
	}
	go x.indexer()
	return x, nil
}

// Enqueue queues evt for indexing without blocking the caller. The
// finding is discarded when the queue is full.
func (x *Exporter) Enqueue(evt event.Event) {
	select {
	case x.ch <- evt:
	default:
		log.Warn(log.M{Msg: "Exporter queue is full, discarding finding " + evt.EventID})
	}
}

// Stop shuts down the background indexer after the queue drains
func (x *Exporter) Stop() {
	close(x.ch)
}

func (x *Exporter) indexer() {
	for evt := range x.ch {
		if err := x.export(evt); err != nil {
			log.Warn(log.M{Msg: "Cannot index finding " + evt.EventID + " to " +
				x.index + ": " + err.Error()})
		}
	}
}

func (x *Exporter) export(evt event.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	_, err := x.client.Index().
		Index(x.index).
		Id(evt.EventID).
		BodyJson(evt).
		Do(ctx)
	return err
}
