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
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// Decoder turns raw link layer frames into Packets. The layers are reused
// between calls, so a Decoder must only be used by one goroutine; each
// worker owns its own.
type Decoder struct {
	parser   *gopacket.DecodingLayerParser
	linkType layers.LinkType

	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	icmp4   layers.ICMPv4
	icmp6   layers.ICMPv6
	payload gopacket.Payload

	decoded []gopacket.LayerType
}

// NewDecoder creates a decoder for frames of the given link type.
func NewDecoder(linkType layers.LinkType) (*Decoder, error) {
	var first gopacket.LayerType
	switch linkType {
	case layers.LinkTypeEthernet:
		first = layers.LayerTypeEthernet
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		first = layers.LayerTypeIPv4
	case layers.LinkTypeIPv6:
		first = layers.LayerTypeIPv6
	default:
		return nil, errors.Errorf("unsupported link type: %v", linkType)
	}

	d := &Decoder{
		linkType: linkType,
		decoded:  make([]gopacket.LayerType, 0, 8),
	}
	d.parser = gopacket.NewDecodingLayerParser(first,
		&d.eth, &d.dot1q, &d.ip4, &d.ip6, &d.tcp, &d.udp,
		&d.icmp4, &d.icmp6, &d.payload)
	d.parser.IgnoreUnsupported = true

	return d, nil
}

// Decode fills p from data. Layers decoded before an error are kept, so a
// truncated packet still carries whatever headers were complete.
func (d *Decoder) Decode(data []byte, ci gopacket.CaptureInfo, p *Packet) error {
	p.Reset()
	p.Timestamp = ci.Timestamp
	p.LinkType = d.linkType
	p.Data = data

	err := d.parser.DecodeLayers(data, &d.decoded)

	for _, layerType := range d.decoded {
		switch layerType {
		case layers.LayerTypeIPv4:
			p.ProtoBits |= ProtoBitIPv4
			p.SrcIP = d.ip4.SrcIP
			p.DstIP = d.ip4.DstIP
			p.TTL = d.ip4.TTL
			p.IPProto = uint8(d.ip4.Protocol)
		case layers.LayerTypeIPv6:
			p.ProtoBits |= ProtoBitIPv6
			p.SrcIP = d.ip6.SrcIP
			p.DstIP = d.ip6.DstIP
			p.TTL = d.ip6.HopLimit
			p.IPProto = uint8(d.ip6.NextHeader)
		case layers.LayerTypeTCP:
			p.ProtoBits |= ProtoBitTCP
			p.SrcPort = uint16(d.tcp.SrcPort)
			p.DstPort = uint16(d.tcp.DstPort)
			p.Payload = d.tcp.LayerPayload()
		case layers.LayerTypeUDP:
			p.ProtoBits |= ProtoBitUDP
			p.SrcPort = uint16(d.udp.SrcPort)
			p.DstPort = uint16(d.udp.DstPort)
			p.Payload = d.udp.LayerPayload()
		case layers.LayerTypeICMPv4:
			p.SetIcmp(IcmpHeader{
				Version: 4,
				Type:    d.icmp4.TypeCode.Type(),
				Code:    d.icmp4.TypeCode.Code(),
				Id:      d.icmp4.Id,
				Seq:     d.icmp4.Seq,
			})
			p.Payload = d.icmp4.LayerPayload()
		case layers.LayerTypeICMPv6:
			h := IcmpHeader{
				Version: 6,
				Type:    d.icmp6.TypeCode.Type(),
				Code:    d.icmp6.TypeCode.Code(),
			}
			// Echo messages carry identifier and sequence in the first
			// four bytes after the fixed header.
			body := d.icmp6.LayerPayload()
			if h.IsEcho() && len(body) >= 4 {
				h.Id = binary.BigEndian.Uint16(body[0:2])
				h.Seq = binary.BigEndian.Uint16(body[2:4])
				body = body[4:]
			}
			p.SetIcmp(h)
			p.Payload = body
		case layers.LayerTypeEthernet:
			if d.eth.EthernetType == layers.EthernetTypeARP {
				p.ProtoBits |= ProtoBitARP
			}
		}
	}

	if p.ProtoBits == ProtoBitNone {
		p.ProtoBits = ProtoBitOther
	}

	if err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
