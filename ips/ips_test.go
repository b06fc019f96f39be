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

package ips

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/jasonish/evedetect/packet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A minimal option kind matching on the packet TTL.

type ttlModule struct {
	value int64
	mode  string
	seen  []string
}

func (m *ttlModule) Name() string { return "test_ttl" }

func (m *ttlModule) Params() []Parameter {
	return []Parameter{
		{Name: "value", Type: ParamInt, Range: "0:255", Positional: true, Required: true,
			Help: "ttl to match"},
		{Name: "mode", Type: ParamEnum, Range: "eq | ne", Default: "eq",
			Help: "comparison"},
		{Name: "verbose", Type: ParamImplied, Help: "unused flag"},
	}
}

func (m *ttlModule) Begin() error {
	m.value = 0
	m.mode = ""
	return nil
}

func (m *ttlModule) Set(v Value) error {
	m.seen = append(m.seen, v.Param.Name)
	switch {
	case v.Is("value"):
		m.value = v.Int()
	case v.Is("mode"):
		m.mode = v.String()
	case v.Is("verbose"):
		if !v.Bool() {
			return errors.New("impossible")
		}
	default:
		return errors.New("unexpected")
	}
	return nil
}

func (m *ttlModule) End() error {
	if m.value == 13 {
		return errors.New("unlucky")
	}
	return nil
}

type ttlOption struct {
	value uint8
	ne    bool
}

func (o *ttlOption) Name() string { return "test_ttl" }

func (o *ttlOption) Hash() uint32 {
	ne := uint32(0)
	if o.ne {
		ne = 1
	}
	return HashOf(o.Name(), uint32(o.value), ne, 0)
}

func (o *ttlOption) Equals(other Option) bool {
	rhs, ok := other.(*ttlOption)
	return ok && other.Name() == o.Name() && *rhs == *o
}

func (o *ttlOption) Eval(_ *Cursor, p *packet.Packet) Result {
	if (p.TTL == o.value) != o.ne {
		return Match
	}
	return NoMatch
}

type counter struct {
	modCtor, modDtor, ctor, dtor int
}

func newTTLApi(c *counter) *Api {
	return &Api{
		Name:   "test_ttl",
		Protos: packet.ProtoBitIP,
		ModCtor: func() Module {
			c.modCtor++
			return &ttlModule{}
		},
		ModDtor: func(Module) { c.modDtor++ },
		Ctor: func(m Module) (Option, error) {
			c.ctor++
			mod := m.(*ttlModule)
			return &ttlOption{value: uint8(mod.value), ne: mod.mode == "ne"}, nil
		},
		Dtor: func(Option) { c.dtor++ },
	}
}

func TestHashGolden(t *testing.T) {
	assert.Equal(t, uint32(0x8a614af1), HashOf("icmp_seq", 0, 5, 0))
	assert.Equal(t, uint32(0x5f26c9e5), HashOf("icmp_id", 0, 5, 0))
	assert.Equal(t, uint32(0x1f4b0eb8), HashOf("icmp_seq", 3, 1, 10))
	assert.Equal(t, uint32(0), HashOf("", 0, 0, 0))
}

func TestHashCollisions(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seen := map[uint32]string{}
	configs := map[string]bool{}
	collisions := 0
	for len(configs) < 20000 {
		a, b, c := uint32(rng.Intn(5)), uint32(rng.Int31()), uint32(rng.Int31())
		key := fmt.Sprintf("%d/%d/%d", a, b, c)
		if configs[key] {
			continue
		}
		configs[key] = true
		h := HashOf("icmp_seq", a, b, c)
		if _, ok := seen[h]; ok {
			collisions++
		}
		seen[h] = key
	}
	// The expected number for an ideal 32 bit hash is about 0.05.
	assert.True(t, collisions <= 2, "collisions: %d", collisions)
}

func TestBindPositionalAndDefault(t *testing.T) {
	m := &ttlModule{}
	require.Nil(t, Bind(m, "64"))
	assert.Equal(t, int64(64), m.value)
	assert.Equal(t, "eq", m.mode)
	assert.Equal(t, []string{"value", "mode"}, m.seen)
}

func TestBindNamed(t *testing.T) {
	m := &ttlModule{}
	require.Nil(t, Bind(m, `mode "ne", 12, verbose`))
	assert.Equal(t, int64(12), m.value)
	assert.Equal(t, "ne", m.mode)
}

func TestBindErrors(t *testing.T) {
	var schemaErr *SchemaError
	var parseErr *ParseError

	err := Bind(&ttlModule{}, "64, bogus")
	require.NotNil(t, err)
	require.True(t, errors.As(err, &schemaErr), "%v", err)
	assert.Equal(t, "bogus", schemaErr.Param)

	err = Bind(&ttlModule{}, "")
	require.True(t, errors.As(err, &schemaErr), "%v", err)
	assert.Equal(t, "value", schemaErr.Param)

	err = Bind(&ttlModule{}, "300")
	require.True(t, errors.As(err, &parseErr), "%v", err)
	assert.Equal(t, "value", parseErr.Param)
	assert.Equal(t, "300", parseErr.Value)

	err = Bind(&ttlModule{}, "1, mode gt")
	require.True(t, errors.As(err, &parseErr), "%v", err)

	err = Bind(&ttlModule{}, "1, mode eq, mode ne")
	require.True(t, errors.As(err, &schemaErr), "%v", err)

	err = Bind(&ttlModule{}, "13")
	require.True(t, errors.As(err, &parseErr), "%v", err)
	assert.Contains(t, err.Error(), "unlucky")
}

func TestSplitArgs(t *testing.T) {
	assert.Equal(t, []string{"a 1", `b "x,y"`, "c"}, splitArgs(` a 1 , b "x,y",, c `))
	assert.Equal(t, []string{}, splitArgs(""))
}

func TestParameterValidate(t *testing.T) {
	p := Parameter{Name: "n", Type: ParamInt, Range: ":10"}
	assert.Nil(t, p.Validate("-5"))
	assert.NotNil(t, p.Validate("11"))
	assert.NotNil(t, p.Validate("x"))

	b := Parameter{Name: "b", Type: ParamBool}
	assert.Nil(t, b.Validate("true"))
	assert.NotNil(t, b.Validate("yes please"))

	s := Parameter{Name: "s", Type: ParamString, Range: "3"}
	assert.Nil(t, s.Validate("abc"))
	assert.NotNil(t, s.Validate("abcd"))
	assert.NotNil(t, s.Validate(""))
}

func TestRegistry(t *testing.T) {
	c := &counter{}
	reg := NewRegistry()
	require.Nil(t, reg.Register(newTTLApi(c)))
	assert.NotNil(t, reg.Register(newTTLApi(c)))
	assert.NotNil(t, reg.Register(&Api{Name: ""}))
	assert.NotNil(t, reg.Register(&Api{Name: "no_ctor"}))

	other := newTTLApi(c)
	other.Name = "another"
	require.Nil(t, reg.Register(other))

	assert.Equal(t, []string{"another", "test_ttl"}, reg.Names())
	assert.Equal(t, 2, reg.Len())

	kind, ok := reg.Get("test_ttl")
	require.True(t, ok)
	assert.Equal(t, 0, kind.Id)
	kind, ok = reg.Get("another")
	require.True(t, ok)
	assert.Equal(t, 1, kind.Id)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestBuildAndIntern(t *testing.T) {
	c := &counter{}
	reg := NewRegistry()
	reg.MustRegister(newTTLApi(c))
	kind, _ := reg.Get("test_ttl")

	table := NewOptionTable()

	first, err := kind.Build("64")
	require.Nil(t, err)
	first, existed := table.Intern(first)
	assert.False(t, existed)

	second, err := kind.Build("64, mode eq")
	require.Nil(t, err)
	assert.True(t, first.Equals(second.Option))
	assert.Equal(t, first.Hash(), second.Hash())
	shared, existed := table.Intern(second)
	assert.True(t, existed)
	assert.True(t, shared == first)

	third, err := kind.Build("64, mode ne")
	require.Nil(t, err)
	third, existed = table.Intern(third)
	assert.False(t, existed)
	assert.False(t, third == first)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.Collapsed())

	// Every module is destroyed after construction, the duplicate
	// immediately.
	assert.Equal(t, 3, c.modCtor)
	assert.Equal(t, 3, c.modDtor)
	assert.Equal(t, 3, c.ctor)
	assert.Equal(t, 1, c.dtor)

	table.Release()
	assert.Equal(t, 3, c.dtor)
	assert.Equal(t, 0, table.Len())
}

func TestBuildFailure(t *testing.T) {
	c := &counter{}
	reg := NewRegistry()
	reg.MustRegister(newTTLApi(c))
	kind, _ := reg.Get("test_ttl")

	_, err := kind.Build("nope, nope")
	assert.NotNil(t, err)
	assert.Equal(t, 0, c.ctor)
	assert.Equal(t, 1, c.modDtor)
}

func TestWorkerContextProfiling(t *testing.T) {
	c := &counter{}
	reg := NewRegistry()
	reg.MustRegister(newTTLApi(c))
	kind, _ := reg.Get("test_ttl")
	inst, err := kind.Build("64")
	require.Nil(t, err)

	profiler := NewProfiler(reg)
	w := NewWorkerContext(reg.Len(), true)

	ip := &packet.Packet{ProtoBits: packet.ProtoBitIPv4, TTL: 64}
	other := &packet.Packet{ProtoBits: packet.ProtoBitARP, TTL: 64}

	assert.Equal(t, Match, w.Eval(inst, w.Cursor(), ip))
	assert.Equal(t, NoMatch, w.Eval(inst, w.Cursor(), other))

	stats := w.Stats(kind)
	assert.Equal(t, uint64(2), stats.Checks)
	assert.Equal(t, uint64(1), stats.Matches)

	profiler.Merge(w)
	assert.Equal(t, ProfileStats{}, w.Stats(kind))

	snapshot := profiler.Snapshot()
	require.Equal(t, 1, len(snapshot))
	assert.Equal(t, "test_ttl", snapshot[0].Name)
	assert.Equal(t, uint64(2), snapshot[0].Checks)
	assert.Equal(t, uint64(2), profiler.Get("test_ttl").Checks)
	assert.Equal(t, uint64(1), profiler.Merges())

	profiler.Reset()
	assert.Equal(t, 0, len(profiler.Snapshot()))
}

func TestWorkerContextGrows(t *testing.T) {
	reg := NewRegistry()
	w := NewWorkerContext(reg.Len(), false)
	reg.MustRegister(newTTLApi(&counter{}))
	kind, _ := reg.Get("test_ttl")
	inst, err := kind.Build("1")
	require.Nil(t, err)

	p := &packet.Packet{ProtoBits: packet.ProtoBitIPv4, TTL: 1}
	assert.Equal(t, Match, w.Eval(inst, w.Cursor(), p))
	assert.Equal(t, uint64(1), w.Stats(kind).Checks)
}

func TestCursor(t *testing.T) {
	c := &Cursor{}
	c.Reset(&packet.Packet{Payload: []byte("abcdef")})
	assert.Equal(t, 0, c.Pos())
	assert.True(t, c.Advance(2))
	assert.Equal(t, []byte("cdef"), c.Remaining())
	assert.False(t, c.Advance(5))
	assert.Equal(t, 2, c.Pos())
	assert.True(t, c.Set(6))
	assert.Equal(t, []byte{}, c.Remaining())
	assert.False(t, c.Set(-1))
}
