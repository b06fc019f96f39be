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
	"sync"

	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/packet"
	"github.com/satori/go.uuid"
)

// Match is a rule that matched a packet. Action is the effective action
// after rule state overrides and Node the rule list routing the match.
type Match struct {
	Rule   *Rule
	Action Action
	Node   *RuleListNode
}

// RuleSet is an immutable compiled set of rules. It is safe for
// concurrent use by any number of workers, each with its own
// ips.WorkerContext.
type RuleSet struct {
	id     string
	lists  *RuleLists
	states *RuleStateTable
	table  *ips.OptionTable
	rules  int

	closeOnce sync.Once
}

func newRuleSet(lists *RuleLists, states *RuleStateTable, table *ips.OptionTable, rules int) *RuleSet {
	return &RuleSet{
		id:     uuid.NewV4().String(),
		lists:  lists,
		states: states,
		table:  table,
		rules:  rules,
	}
}

// ID is unique per compiled rule set.
func (s *RuleSet) ID() string {
	return s.id
}

func (s *RuleSet) Lists() *RuleLists {
	return s.lists
}

func (s *RuleSet) States() *RuleStateTable {
	return s.states
}

func (s *RuleSet) RuleCount() int {
	return s.rules
}

// OptionCount is the number of distinct option instances.
func (s *RuleSet) OptionCount() int {
	return s.table.Len()
}

// SharedOptions is the number of option occurrences that reused an
// existing instance.
func (s *RuleSet) SharedOptions() int {
	return s.table.Collapsed()
}

// Detect evaluates the rule lists in order against p, calling fn for
// every matching rule. Rule states are applied before a rule's options
// are evaluated. A matching pass rule ends evaluation after its list. It
// returns the number of matches.
func (s *RuleSet) Detect(w *ips.WorkerContext, p *packet.Packet, fn func(Match)) int {
	matches := 0
	for _, node := range s.lists.Nodes() {
		pass := false
		for _, rule := range node.Head.Rules {
			enabled, action := rule.Enabled, rule.Action
			if state, ok := s.states.Lookup(rule.Gid, rule.Sid); ok {
				enabled = state.Enabled
				if state.Action != ActionNone {
					action = state.Action
				}
			}
			if !enabled || !p.ProtoBits.Intersects(rule.Protos) {
				continue
			}
			if !s.eval(w, rule, p) {
				continue
			}

			target := node
			if action != node.Mode {
				target = s.lists.Get(action)
			}
			matches++
			fn(Match{Rule: rule, Action: action, Node: target})
			if action == ActionPass {
				pass = true
			}
		}
		if pass {
			break
		}
	}
	return matches
}

// eval runs the option chain of a rule until an option fails.
func (s *RuleSet) eval(w *ips.WorkerContext, rule *Rule, p *packet.Packet) bool {
	cursor := w.Cursor()
	cursor.Reset(p)
	for _, option := range rule.Options {
		if w.Eval(option, cursor, p) != ips.Match {
			return false
		}
	}
	return true
}

// Close releases the option instances. Only call it once no worker can
// still be evaluating the set; later calls do nothing.
func (s *RuleSet) Close() {
	s.closeOnce.Do(func() {
		s.table.Release()
	})
}
