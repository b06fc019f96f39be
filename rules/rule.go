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

package rules

import (
	"fmt"

	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/packet"
)

// Location is where a rule was read from.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Rule is a compiled rule. Its option instances may be shared with other
// rules of the same RuleSet.
type Rule struct {
	Gid uint32
	Sid uint32
	Rev uint32

	Msg       string
	Classtype string
	Priority  int

	Action Action

	// False for rules that were commented out. A rule state can enable
	// them.
	Enabled bool

	// Packets the rule header applies to.
	Protos packet.ProtoBits

	Options []*ips.Instance

	Raw      string
	Location Location
}

func (r *Rule) Key() RuleKey {
	return RuleKey{r.Gid, r.Sid}
}

func (r *Rule) String() string {
	return fmt.Sprintf("%d:%d:%d", r.Gid, r.Sid, r.Rev)
}
