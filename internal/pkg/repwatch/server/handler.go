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

package server

import (
	"encoding/json"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/worker"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/xreputation"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
	"github.com/repwatch/repwatch/pkg/reputation"

	"github.com/fasthttp-contrib/websocket"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/expvarhandler"
	"github.com/valyala/fasthttp/pprofhandler"
)

type statusResponse struct {
	worker.Stats
	UptimeSeconds     int64 `json:"uptime_seconds"`
	FindingsPerSecond int64 `json:"findings_per_second"`
	FindingsTotal     int64 `json:"findings_total"`
}

type checkInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type lookupRequest struct {
	Value string `json:"value"`
	Kind  string `json:"kind"`
}

type lookupResponse struct {
	Found   bool                `json:"found"`
	Results []reputation.Result `json:"results,omitempty"`
}

func pprofHandler(ctx *fasthttp.RequestCtx) {
	pprofhandler.PprofHandler(ctx)
}

func expVarHandler(ctx *fasthttp.RequestCtx) {
	expvarhandler.ExpvarHandler(ctx)
}

func wsHandler(ctx *fasthttp.RequestCtx) {
	upgrader = websocket.New(wss.onClientConnected)
	err := upgrader.Upgrade(ctx)
	if err != nil {
		log.Warn(log.M{Msg: "error returned from websocket: " + err.Error()})
	}
}

func handleStatus(ctx *fasthttp.RequestCtx) {
	clientAddr := ctx.RemoteAddr().String()
	log.Debug(log.M{Msg: "Status request from " + clientAddr})
	res := statusResponse{
		UptimeSeconds:     int64(time.Since(startTime).Seconds()),
		FindingsPerSecond: rateCounter.Rate(),
		FindingsTotal:     findingTotal.Value(),
	}
	if statsFunc != nil {
		res.Stats = statsFunc()
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	_, _ = ctx.Write(b)
}

func handleChecks(ctx *fasthttp.RequestCtx) {
	checks := []checkInfo{}
	for _, v := range xreputation.Checkers() {
		checks = append(checks, checkInfo{Name: v.Name, ID: v.ID})
	}
	b, err := json.MarshalIndent(checks, "", "  ")
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	_, _ = ctx.Write(b)
}

func handleLookup(ctx *fasthttp.RequestCtx) {
	clientAddr := ctx.RemoteAddr().String()
	if !xreputation.Enabled {
		ctx.Error("No reputation check enabled", fasthttp.StatusServiceUnavailable)
		return
	}
	var req lookupRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.Error("Cannot parse request body", fasthttp.StatusBadRequest)
		return
	}
	kind := reputation.Kind(req.Kind)
	if !reputation.ValidKind(kind) {
		ctx.Error("Unknown indicator kind", fasthttp.StatusBadRequest)
		return
	}
	if req.Value == "" {
		ctx.Error("Empty indicator value", fasthttp.StatusBadRequest)
		return
	}
	log.Debug(log.M{Msg: "Lookup request from " + clientAddr, Term: req.Value})
	found, results := xreputation.CheckTerm(reputation.Indicator{Kind: kind, Value: req.Value})
	b, err := json.Marshal(lookupResponse{Found: found, Results: results})
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	_, _ = ctx.Write(b)
}
