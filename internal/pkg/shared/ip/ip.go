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

package ip

import (
	"errors"
	"net"

	"github.com/yl2chen/cidranger"
)

var privateRanger cidranger.Ranger

func init() {
	privateRanger = cidranger.NewPCTrieRanger()
	for _, cidr := range []string{
		"127.0.0.0/8",    // IPv4 loopback
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"::1/128",        // IPv6 loopback
		"fe80::/10",      // IPv6 link-local
	} {
		_, block, _ := net.ParseCIDR(cidr)
		privateRanger.Insert(cidranger.NewBasicRangerEntry(*block))
	}
}

// IsPrivateIP check if IP is in private range
func IsPrivateIP(ip string) (bool, error) {
	ipn := net.ParseIP(ip)
	if ipn == nil {
		return false, errors.New(ip + " is not a valid IP address")
	}
	return privateRanger.Contains(ipn)
}

// Netblock test membership of individual addresses in a single CIDR block
type Netblock struct {
	ranger cidranger.Ranger
}

// NewNetblock returns initialized Netblock for cidr
func NewNetblock(cidr string) (*Netblock, error) {
	_, block, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	n := Netblock{ranger: cidranger.NewPCTrieRanger()}
	if err := n.ranger.Insert(cidranger.NewBasicRangerEntry(*block)); err != nil {
		return nil, err
	}
	return &n, nil
}

// Contains check if addr is within the netblock. Unparseable addr
// returns an error so that callers can skip bad list entries.
func (n *Netblock) Contains(addr string) (bool, error) {
	ipn := net.ParseIP(addr)
	if ipn == nil {
		return false, errors.New(addr + " is not a valid IP address")
	}
	return n.ranger.Contains(ipn)
}
