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

// Package ips defines the detection option framework: the Option contract
// every rule predicate implements, the parameter schema and Module binding
// used to configure options from rule text, the Api descriptor and
// Registry used to discover them, and the dedup table that collapses
// identical options across rules.
package ips

import (
	"github.com/jasonish/evedetect/packet"
)

// Result of evaluating an option against a packet.
type Result int

const (
	NoMatch Result = iota
	Match
	// Inconclusive is returned when an option could not be evaluated, for
	// example a content option whose cursor cannot be positioned. Rule
	// chains treat it as a failed option.
	Inconclusive
)

func (r Result) String() string {
	switch r {
	case NoMatch:
		return "no-match"
	case Match:
		return "match"
	case Inconclusive:
		return "inconclusive"
	}
	return "unknown"
}

// Option is a compiled detection predicate.
//
// Two options of the same kind with structurally equal configuration must
// return the same Hash and compare Equal; the compiler relies on this to
// share one instance between every rule that uses it. Eval must not
// modify the packet, must not block and must not allocate.
type Option interface {
	Name() string
	Hash() uint32
	Equals(other Option) bool
	Eval(cursor *Cursor, p *packet.Packet) Result
}

// Cursor is the read position into the packet payload shared by the
// options of one rule. Field options ignore it.
type Cursor struct {
	buf []byte
	pos int
}

// Reset points the cursor at the start of the packet payload.
func (c *Cursor) Reset(p *packet.Packet) {
	c.buf = p.Payload
	c.pos = 0
}

func (c *Cursor) Buffer() []byte {
	return c.buf
}

func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the unread part of the buffer.
func (c *Cursor) Remaining() []byte {
	return c.buf[c.pos:]
}

// Set moves the cursor to an absolute position.
func (c *Cursor) Set(pos int) bool {
	if pos < 0 || pos > len(c.buf) {
		return false
	}
	c.pos = pos
	return true
}

// Advance moves the cursor forward by n bytes.
func (c *Cursor) Advance(n int) bool {
	return c.Set(c.pos + n)
}
