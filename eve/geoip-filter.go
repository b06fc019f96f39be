/* Copyright (c) 2016 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package eve

import (
	"net"

	"github.com/jasonish/evedetect/geoip"
	"github.com/jasonish/evedetect/log"
)

// EveFilter modifies an event before it is written to an output.
type EveFilter interface {
	Filter(event EveEvent)
}

var privateNetstrings = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
}

var privateIPNets []*net.IPNet

func init() {
	for _, network := range privateNetstrings {
		_, ipnet, err := net.ParseCIDR(network)
		if err == nil {
			privateIPNets = append(privateIPNets, ipnet)
		}
	}
}

// isPrivate is true for addresses a geoip database has no answer for.
func isPrivate(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return true
	}
	for _, ipnet := range privateIPNets {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// GeoipLookup is implemented by *geoip.GeoIpDb.
type GeoipLookup interface {
	LookupString(addr string) (*geoip.GeoIp, error)
}

// GeoipFilter adds a "geoip" object for the first public address of the
// event, source before destination.
type GeoipFilter struct {
	db GeoipLookup
}

func NewGeoipFilter(db GeoipLookup) *GeoipFilter {
	return &GeoipFilter{
		db: db,
	}
}

func (f *GeoipFilter) Filter(event EveEvent) {
	if f.db == nil || event["geoip"] != nil {
		return
	}

	for _, key := range []string{"src_ip", "dest_ip"} {
		addr := event.GetString(key)
		if addr == "" || isPrivate(addr) {
			continue
		}
		gip, err := f.db.LookupString(addr)
		if err != nil {
			log.Debug("Failed to lookup geoip for %s: %v", addr, err)
			continue
		}
		if gip != nil {
			event["geoip"] = gip
			return
		}
	}
}

// TagsFilter adds a tag to every event.
type TagsFilter struct {
	Tags []string
}

func (f *TagsFilter) Filter(event EveEvent) {
	for _, tag := range f.Tags {
		event.AddTag(tag)
	}
}
