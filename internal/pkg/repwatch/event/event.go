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

package event

import (
	"encoding/json"
)

// Discovery event types consumed from the recon host
const (
	TypeIPAddr           = "IP_ADDRESS"
	TypeAffiliateIPAddr  = "AFFILIATE_IPADDR"
	TypeBGPASOwner       = "BGP_AS_OWNER"
	TypeBGPASMember      = "BGP_AS_MEMBER"
	TypeInternetName     = "INTERNET_NAME"
	TypeAffiliateIntName = "AFFILIATE_INTERNET_NAME"
	TypeCoHostedSite     = "CO_HOSTED_SITE"
	TypeNetblockOwner    = "NETBLOCK_OWNER"
	TypeNetblockMember   = "NETBLOCK_MEMBER"
)

// Finding event types produced for the recon host
const (
	TypeMaliciousIPAddr           = "MALICIOUS_IPADDR"
	TypeMaliciousAffiliateIPAddr  = "MALICIOUS_AFFILIATE_IPADDR"
	TypeMaliciousASN              = "MALICIOUS_ASN"
	TypeMaliciousInternetName     = "MALICIOUS_INTERNET_NAME"
	TypeMaliciousAffiliateIntName = "MALICIOUS_AFFILIATE_INTERNET_NAME"
	TypeMaliciousCoHost           = "MALICIOUS_COHOST"
	TypeMaliciousNetblock         = "MALICIOUS_NETBLOCK"
	TypeMaliciousSubnet           = "MALICIOUS_SUBNET"
)

// Event represents a recon event, both discoveries received from the
// host and findings published back to it
type Event struct {
	EventID   string `json:"event_id"`
	RunID     string `json:"run_id"`
	Type      string `json:"type"`
	Data      string `json:"data"`
	Module    string `json:"module"`
	SourceID  string `json:"source_id,omitempty"`
	Timestamp string `json:"timestamp"`
	RcvdTime  int64  `json:"rcvd_time,omitempty"` // for backpressure control
}

// Valid check if event contains valid content for required fields
func (e *Event) Valid() bool {
	return e.EventID != "" && e.RunID != "" && e.Type != "" && e.Data != "" && e.Timestamp != ""
}

// FromBytes initialize Event
func (e *Event) FromBytes(b []byte) error {
	err := json.Unmarshal(b, &e)
	return err
}

// ToBytes return byte rep of event
func (e *Event) ToBytes() (b []byte, err error) {
	b, err = json.Marshal(e)
	return
}
