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

// Package options contains the builtin detection options. Each compares
// one integer packet field against a range check given in the rule text,
// for example "icmp_seq:<5" or "dsize:100<>200".
package options

import (
	"sync/atomic"

	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/packet"
	"github.com/jasonish/evedetect/rangecheck"
	"github.com/pkg/errors"
)

// field describes the packet field a range option compares. get returns
// false when the packet does not carry the field.
type field struct {
	name   string
	help   string
	protos packet.ProtoBits
	lo, hi int32
	get    func(p *packet.Packet) (int32, bool)
}

var fields = []*field{
	{
		name:   "icmp_seq",
		help:   "rule option to check ICMP sequence number",
		protos: packet.ProtoBitICMP,
		lo:     0, hi: 65535,
		get: func(p *packet.Packet) (int32, bool) {
			if p.Icmp == nil || !p.Icmp.IsEcho() {
				return 0, false
			}
			return int32(p.Icmp.Seq), true
		},
	},
	{
		name:   "icmp_id",
		help:   "rule option to check ICMP ID",
		protos: packet.ProtoBitICMP,
		lo:     0, hi: 65535,
		get: func(p *packet.Packet) (int32, bool) {
			if p.Icmp == nil || !p.Icmp.IsEcho() {
				return 0, false
			}
			return int32(p.Icmp.Id), true
		},
	},
	{
		name:   "itype",
		help:   "rule option to check ICMP type",
		protos: packet.ProtoBitICMP,
		lo:     0, hi: 255,
		get: func(p *packet.Packet) (int32, bool) {
			if p.Icmp == nil {
				return 0, false
			}
			return int32(p.Icmp.Type), true
		},
	},
	{
		name:   "icode",
		help:   "rule option to check ICMP code",
		protos: packet.ProtoBitICMP,
		lo:     0, hi: 255,
		get: func(p *packet.Packet) (int32, bool) {
			if p.Icmp == nil {
				return 0, false
			}
			return int32(p.Icmp.Code), true
		},
	},
	{
		name:   "ttl",
		help:   "rule option to check time to live field",
		protos: packet.ProtoBitIP,
		lo:     0, hi: 255,
		get: func(p *packet.Packet) (int32, bool) {
			if !p.Has(packet.ProtoBitIP) {
				return 0, false
			}
			return int32(p.TTL), true
		},
	},
	{
		name:   "dsize",
		help:   "rule option to test payload size",
		protos: packet.ProtoBitAll,
		lo:     0, hi: 65535,
		get: func(p *packet.Packet) (int32, bool) {
			return int32(len(p.Payload)), true
		},
	},
}

// Number of option instances constructed and not yet destroyed.
var live int64

// Live returns the number of builtin option instances currently alive.
func Live() int64 {
	return atomic.LoadInt64(&live)
}

type rangeModule struct {
	field *field
	check rangecheck.RangeCheck
}

func (m *rangeModule) Name() string {
	return m.field.name
}

func (m *rangeModule) Params() []ips.Parameter {
	return []ips.Parameter{
		{
			Name:       "range",
			Type:       ips.ParamString,
			Positional: true,
			Required:   true,
			Help:       "check if " + m.field.name + " is 'N | min<>max | <max | >min'",
		},
	}
}

func (m *rangeModule) Begin() error {
	m.check.Init()
	return nil
}

func (m *rangeModule) Set(v ips.Value) error {
	if !v.Is("range") {
		return errors.Errorf("unexpected parameter %s", v.Param.Name)
	}
	return m.check.Parse(v.String())
}

func (m *rangeModule) End() error {
	if !m.check.Within(m.field.lo, m.field.hi) {
		return errors.Errorf("%s can never match a value in %d..%d",
			m.check, m.field.lo, m.field.hi)
	}
	return nil
}

// RangeOption is a compiled field option.
type RangeOption struct {
	field *field
	Check rangecheck.RangeCheck
}

func (o *RangeOption) Name() string {
	return o.field.name
}

func (o *RangeOption) Hash() uint32 {
	return ips.HashOf(o.field.name, uint32(o.Check.Op), uint32(o.Check.Min),
		uint32(o.Check.Max))
}

func (o *RangeOption) Equals(other ips.Option) bool {
	rhs, ok := other.(*RangeOption)
	if !ok {
		return false
	}
	return rhs.field.name == o.field.name && rhs.Check == o.Check
}

func (o *RangeOption) Eval(_ *ips.Cursor, p *packet.Packet) ips.Result {
	value, ok := o.field.get(p)
	if ok && o.Check.Eval(value) {
		return ips.Match
	}
	return ips.NoMatch
}

func newApi(f *field) *ips.Api {
	return &ips.Api{
		Name:   f.name,
		Help:   f.help,
		Protos: f.protos,
		ModCtor: func() ips.Module {
			return &rangeModule{field: f}
		},
		Ctor: func(m ips.Module) (ips.Option, error) {
			mod := m.(*rangeModule)
			atomic.AddInt64(&live, 1)
			return &RangeOption{field: mod.field, Check: mod.check}, nil
		},
		Dtor: func(ips.Option) {
			atomic.AddInt64(&live, -1)
		},
	}
}

// Apis returns a fresh descriptor for every builtin option.
func Apis() []*ips.Api {
	apis := make([]*ips.Api, 0, len(fields))
	for _, f := range fields {
		apis = append(apis, newApi(f))
	}
	return apis
}

// Register adds every builtin option to reg.
func Register(reg *ips.Registry) error {
	for _, api := range Apis() {
		if err := reg.Register(api); err != nil {
			return err
		}
	}
	return nil
}
