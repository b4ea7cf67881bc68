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

package nats

import "github.com/nats-io/nats.go"

// Options can be used to create a customized transport.
type Options struct {
	Conn *nats.Conn
}

// Option is a function on the options for a nats transport.
type Option func(*Options)

// WithConn makes the transport reuse an existing NATS connection.
func WithConn(c *nats.Conn) Option {
	return func(o *Options) {
		o.Conn = c
	}
}
