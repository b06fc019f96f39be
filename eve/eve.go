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
	"encoding/base64"
	"time"

	"github.com/google/gopacket"
	"github.com/jasonish/evedetect/packet"
	"github.com/pkg/errors"
)

// The Eve timestamp format - a slightly modified RFC3339Nano format.
const EveTimestampFormat = "2006-01-02T15:04:05.999999999Z0700"

func ParseTimestamp(timestamp string) (time.Time, error) {
	return time.Parse(EveTimestampFormat, timestamp)
}

func FormatTimestamp(timestamp time.Time) string {
	return timestamp.Format("2006-01-02T15:04:05.000000-0700")
}

// Alert is the rule side of an alert event.
type Alert struct {
	// The rule action, "alert", "drop"...
	Action string

	// Blocked is set for actions that stop the packet.
	Blocked bool

	Gid       uint32
	Sid       uint32
	Rev       uint32
	Signature string
	Category  string
	Severity  int
}

// NewAlertEvent builds an "alert" event for a packet that matched a rule.
func NewAlertEvent(p *packet.Packet, alert Alert) EveEvent {
	action := "allowed"
	if alert.Blocked {
		action = "blocked"
	}

	event := EveEvent{
		"event_type": "alert",
		"alert": map[string]interface{}{
			"action":       action,
			"rule_action":  alert.Action,
			"gid":          alert.Gid,
			"signature_id": alert.Sid,
			"rev":          alert.Rev,
			"signature":    alert.Signature,
			"category":     alert.Category,
			"severity":     alert.Severity,
		},
		"tags": []interface{}{},
	}
	event.SetTimestamp(p.Timestamp)

	if p.SrcIP != nil {
		event["src_ip"] = p.SrcIP.String()
	}
	if p.DstIP != nil {
		event["dest_ip"] = p.DstIP.String()
	}
	if proto := p.Proto(); proto != "" {
		event["proto"] = proto
	}
	if p.Has(packet.ProtoBitTCP | packet.ProtoBitUDP) {
		event["src_port"] = p.SrcPort
		event["dest_port"] = p.DstPort
	}
	if p.Icmp != nil {
		event["icmp_type"] = p.Icmp.Type
		event["icmp_code"] = p.Icmp.Code
	}
	if len(p.Payload) > 0 {
		event["payload"] = base64.StdEncoding.EncodeToString(p.Payload)
	}
	if len(p.Data) > 0 {
		event["packet"] = base64.StdEncoding.EncodeToString(p.Data)
		event["packet_info"] = map[string]interface{}{
			"linktype": int(p.LinkType),
		}
	}

	return event
}

// PacketFrame returns the packet of an event as a frame ready to be
// written to a pcap file.
func PacketFrame(event EveEvent) (packet.Frame, error) {
	data := event.Packet()
	if data == nil {
		return packet.Frame{}, errors.New("event has no packet")
	}
	return packet.Frame{
		Data: data,
		CaptureInfo: gopacket.CaptureInfo{
			Timestamp:     event.Timestamp(),
			CaptureLength: len(data),
			Length:        len(data),
		},
		LinkType: event.LinkType(),
	}, nil
}
