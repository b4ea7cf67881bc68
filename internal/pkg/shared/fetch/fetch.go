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

// Package fetch retrieves reputation source content over HTTP.
package fetch

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "repwatch"

// Client performs blocking retrieval of reputation source URLs,
// rate-limited so that providers aren't hammered during large scans.
type Client struct {
	hc      *fasthttp.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// New returns initialized Client. maxRPS 0 disables rate limiting.
func New(timeout time.Duration, userAgent string, maxRPS int) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := Client{
		hc: &fasthttp.Client{
			Name:         userAgent,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}
	if maxRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(maxRPS), maxRPS)
	}
	return &c
}

// Get retrieves url and returns its body. Any transport error or
// non-200 response yields an error, never partial content.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.hc.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, errors.New("unexpected status " + strconv.Itoa(resp.StatusCode()) + " from " + url)
	}
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}
