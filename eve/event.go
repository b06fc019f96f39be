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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/util"
	"github.com/pkg/errors"
)

// A EveEvent is an Eve event as a map[string]interface{}. Keys starting
// with "__" hold cached values and are not serialized.
type EveEvent map[string]interface{}

func NewEveEventFromBytes(b []byte) (event EveEvent, err error) {
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		return nil, err
	}

	if event["tags"] == nil {
		event["tags"] = []interface{}{}
	}

	// Fail the decode if the timestamp can't be parsed.
	timestamp, err := event.parseTimestamp()
	if err != nil {
		return nil, err
	}
	event["__parsed_timestamp"] = timestamp

	return event, nil
}

func (e EveEvent) MarshalJSON() ([]byte, error) {
	event := map[string]interface{}{}
	for key, val := range e {
		if strings.HasPrefix(key, "__") {
			continue
		}
		event[key] = val
	}
	return json.Marshal(event)
}

func (e EveEvent) parseTimestamp() (time.Time, error) {
	tsstring, ok := e["timestamp"].(string)
	if !ok {
		return time.Time{}, errors.New("timestamp is not a string")
	}
	return ParseTimestamp(tsstring)
}

func (e EveEvent) Timestamp() time.Time {
	if ts, ok := e["__parsed_timestamp"].(time.Time); ok {
		return ts
	}
	ts, _ := e.parseTimestamp()
	return ts
}

func (e EveEvent) SetTimestamp(ts time.Time) {
	e["timestamp"] = FormatTimestamp(ts)
	e["__parsed_timestamp"] = ts
}

func (e EveEvent) EventType() string {
	return e.GetString("event_type")
}

func (e EveEvent) decodeBase64(key string) []byte {
	encoded, ok := e[key].(string)
	if !ok {
		return nil
	}
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	return buf
}

// Packet returns the decoded "packet" field.
func (e EveEvent) Packet() []byte {
	return e.decodeBase64("packet")
}

// LinkType of the packet, Ethernet if the event does not say.
func (e EveEvent) LinkType() layers.LinkType {
	if linktype, ok := e.GetMap("packet_info").GetUint64("linktype"); ok {
		return layers.LinkType(linktype)
	}
	return layers.LinkTypeEthernet
}

func (e EveEvent) Payload() []byte {
	return e.decodeBase64("payload")
}

func (e EveEvent) Proto() string {
	return e.GetString("proto")
}

func (e EveEvent) SrcIp() string {
	return e.GetString("src_ip")
}

func (e EveEvent) DestIp() string {
	return e.GetString("dest_ip")
}

func (e EveEvent) GetMap(key string) util.JsonMap {
	return util.JsonMap(e).GetMap(key)
}

func (e EveEvent) GetString(key string) string {
	return util.JsonMap(e).GetString(key)
}

func (e EveEvent) GetAlert() util.JsonMap {
	return e.GetMap("alert")
}

func (e EveEvent) GetAlertSignatureId() (uint64, bool) {
	return e.GetAlert().GetUint64("signature_id")
}

func (e EveEvent) GetAlertGeneratorId() (uint64, bool) {
	return e.GetAlert().GetUint64("gid")
}

func (e EveEvent) AddTag(tag string) {
	if e["tags"] == nil {
		e["tags"] = []interface{}{}
	}
	tags, ok := e["tags"].([]interface{})
	if !ok {
		log.Warning("Failed to convert tags to []interface{}: %v", e["tags"])
		return
	}
	for _, existing := range tags {
		if existing == tag {
			return
		}
	}
	e["tags"] = append(tags, tag)
}
