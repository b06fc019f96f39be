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
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Helpers to build complete Ethernet frames. Used by tests and by the
// check command to exercise a rule set without a capture file.

var (
	craftSrcMAC = net.HardwareAddr{0x00, 0x15, 0x17, 0x0d, 0x06, 0xf7}
	craftDstMAC = net.HardwareAddr{0xac, 0xbc, 0x32, 0x7b, 0xed, 0x19}
)

var serializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       craftSrcMAC,
		DstMAC:       craftDstMAC,
		EthernetType: ethType,
	}
}

func ipv4(src, dst string, proto layers.IPProtocol, ttl uint8) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func ipv6(src, dst string, next layers.IPProtocol, hopLimit uint8) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		NextHeader: next,
		HopLimit:   hopLimit,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
}

// CraftICMPv4 builds an ICMP packet with the given type, id and sequence.
func CraftICMPv4(src, dst string, icmpType, icmpCode uint8, id, seq uint16, payload []byte) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(icmpType, icmpCode),
		Id:       id,
		Seq:      seq,
	}
	err := gopacket.SerializeLayers(buffer, serializeOptions,
		ethernet(layers.EthernetTypeIPv4),
		ipv4(src, dst, layers.IPProtocolICMPv4, 64),
		icmp,
		gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// CraftICMPv6 builds an ICMPv6 packet. For echo types id and seq are
// written as the first four bytes of the message body.
func CraftICMPv6(src, dst string, icmpType, icmpCode uint8, id, seq uint16, payload []byte) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()
	ip := ipv6(src, dst, layers.IPProtocolICMPv6, 64)
	icmp := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(icmpType, icmpCode),
	}
	if err := icmp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	body := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint16(body[0:2], id)
	binary.BigEndian.PutUint16(body[2:4], seq)
	body = append(body, payload...)
	err := gopacket.SerializeLayers(buffer, serializeOptions,
		ethernet(layers.EthernetTypeIPv6), ip, icmp, gopacket.Payload(body))
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// CraftTCP builds a TCP/IPv4 packet.
func CraftTCP(src string, srcPort uint16, dst string, dstPort uint16, payload []byte) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()
	ip := ipv4(src, dst, layers.IPProtocolTCP, 64)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	err := gopacket.SerializeLayers(buffer, serializeOptions,
		ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// CraftUDP builds a UDP/IPv4 packet.
func CraftUDP(src string, srcPort uint16, dst string, dstPort uint16, payload []byte) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()
	ip := ipv4(src, dst, layers.IPProtocolUDP, 64)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	err := gopacket.SerializeLayers(buffer, serializeOptions,
		ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
