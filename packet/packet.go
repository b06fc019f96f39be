/* Copyright (c) 2018 Jason Ish
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

package packet

import (
	"net"
	"strings"
	"time"

	"github.com/google/gopacket/layers"
)

// ProtoBits is a bitmask of the protocols decoded in a packet. Option
// descriptors carry one to say which packets they apply to.
type ProtoBits uint32

const (
	ProtoBitIPv4 ProtoBits = 1 << iota
	ProtoBitIPv6
	ProtoBitTCP
	ProtoBitUDP
	ProtoBitICMP
	ProtoBitARP
	ProtoBitOther

	ProtoBitNone ProtoBits = 0
	ProtoBitIP             = ProtoBitIPv4 | ProtoBitIPv6
	ProtoBitAll  ProtoBits = 0xffffffff
)

var protoBitNames = []struct {
	bit  ProtoBits
	name string
}{
	{ProtoBitIPv4, "ipv4"},
	{ProtoBitIPv6, "ipv6"},
	{ProtoBitTCP, "tcp"},
	{ProtoBitUDP, "udp"},
	{ProtoBitICMP, "icmp"},
	{ProtoBitARP, "arp"},
	{ProtoBitOther, "other"},
}

func (b ProtoBits) String() string {
	if b == ProtoBitAll {
		return "all"
	}
	if b == ProtoBitNone {
		return "none"
	}
	names := []string{}
	for _, entry := range protoBitNames {
		if b&entry.bit != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Intersects is true if any bit is shared.
func (b ProtoBits) Intersects(other ProtoBits) bool {
	return b&other != 0
}

// ProtoBitsForRule maps the protocol field of a rule header to the
// packets the rule can apply to.
func ProtoBitsForRule(proto string) (ProtoBits, bool) {
	switch strings.ToLower(proto) {
	case "ip", "any":
		return ProtoBitIP, true
	case "tcp":
		return ProtoBitTCP, true
	case "udp":
		return ProtoBitUDP, true
	case "icmp":
		return ProtoBitICMP, true
	}
	return ProtoBitNone, false
}

// ICMP message types that carry an identifier and sequence number.
const (
	ICMPv4TypeEchoReply   = 0
	ICMPv4TypeEchoRequest = 8
	ICMPv6TypeEchoRequest = 128
	ICMPv6TypeEchoReply   = 129
)

// IcmpHeader is the fixed part of an ICMP or ICMPv6 header. For ICMPv6
// the Id and Seq fields are only filled in for echo messages.
type IcmpHeader struct {
	// 4 for ICMP, 6 for ICMPv6.
	Version uint8
	Type    uint8
	Code    uint8
	Id      uint16
	Seq     uint16
}

// IsEcho reports whether the header is an echo request or reply for its
// own protocol version.
func (h *IcmpHeader) IsEcho() bool {
	switch h.Version {
	case 4:
		return h.Type == ICMPv4TypeEchoRequest || h.Type == ICMPv4TypeEchoReply
	case 6:
		return h.Type == ICMPv6TypeEchoRequest || h.Type == ICMPv6TypeEchoReply
	}
	return false
}

// Packet is the decoded view of a packet that detection options read.
// Decoders reuse Packets; nothing may hold on to one after evaluation.
type Packet struct {
	Timestamp time.Time
	ProtoBits ProtoBits

	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16

	// IPv4 TTL or IPv6 hop limit.
	TTL     uint8
	IPProto uint8

	Icmp *IcmpHeader

	Payload []byte

	// The raw packet data, starting at the link layer.
	Data     []byte
	LinkType layers.LinkType

	icmp IcmpHeader
}

// Reset clears the packet for reuse.
func (p *Packet) Reset() {
	*p = Packet{}
}

func (p *Packet) Has(bits ProtoBits) bool {
	return p.ProtoBits&bits != 0
}

// Proto returns the EVE name of the transport protocol.
func (p *Packet) Proto() string {
	switch {
	case p.Has(ProtoBitTCP):
		return "TCP"
	case p.Has(ProtoBitUDP):
		return "UDP"
	case p.Icmp != nil && p.Icmp.Version == 6:
		return "IPv6-ICMP"
	case p.Has(ProtoBitICMP):
		return "ICMP"
	}
	return ""
}

// SetIcmp points the packet at its embedded ICMP header storage.
func (p *Packet) SetIcmp(h IcmpHeader) {
	p.icmp = h
	p.Icmp = &p.icmp
	p.ProtoBits |= ProtoBitICMP
}
