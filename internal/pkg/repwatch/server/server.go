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

// Package server exposes repwatch status and ad-hoc lookups over HTTP.
package server

import (
	"errors"
	"expvar"
	"net"
	"strconv"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/worker"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"

	"github.com/buaazp/fasthttprouter"
	"github.com/fasthttp-contrib/websocket"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/reuseport"

	rc "github.com/paulbellamy/ratecounter"
)

var rateCounter = rc.NewRateCounter(1 * time.Second)
var wss *wsServer
var upgrader websocket.Upgrader
var statsFunc func() worker.Stats

var fpsCounter = expvar.NewInt("fps_counter")
var findingTotal = expvar.NewInt("finding_total")
var startTime time.Time

// Config holds server runtime settings
type Config struct {
	Addr string
	Port int
	// StatsFunc supplies the worker snapshot served at /status
	StatsFunc func() worker.Stats
}

// CountFinding records one published finding for rate reporting. Plug
// it into the worker's OnFinding hook.
func CountFinding(event.Event) {
	rateCounter.Incr(1)
	findingTotal.Add(1)
}

// Start starts the server. It blocks serving requests until an error
// occurs.
func Start(cfg Config) error {
	if a := net.ParseIP(cfg.Addr); a == nil {
		return errors.New(cfg.Addr + " is not a valid IP address")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("Invalid TCP port number")
	}

	statsFunc = cfg.StatsFunc
	startTime = time.Now()

	p := strconv.Itoa(cfg.Port)
	log.Info(log.M{Msg: "Server listening on " + cfg.Addr + ":" + p})

	initWSServer()
	initFPSTicker()

	router := fasthttprouter.New()
	router.GET("/status", handleStatus)
	router.GET("/checks", handleChecks)
	router.POST("/lookup", handleLookup)
	router.GET("/fps/", wsHandler)
	router.GET("/debug/vars/", expVarHandler)
	router.GET("/debug/pprof/:name", pprofHandler)
	router.GET("/debug/pprof/", pprofHandler)

	ln, err := reuseport.Listen("tcp4", cfg.Addr+":"+p)
	if err != nil {
		return err
	}

	return fasthttp.Serve(ln, router.Handler)
}

func initFPSTicker() {
	ticker := time.NewTicker(time.Second)
	go func() {
		for {
			<-ticker.C
			fpsCounter.Set(rateCounter.Rate())
		}
	}()
}

func initWSServer() {
	wss = newWSServer()
	go func() {
		var c int
		for {
			c = len(wss.clients)
			if c == 0 {
				log.Debug(log.M{Msg: "WS server waiting for client connection."})
				// wait until new client connected
				<-wss.cConnectedCh
			}
			wss.sendAll(&message{rateCounter.Rate()})
			time.Sleep(250 * time.Millisecond)
		}
	}()
}
