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
	"github.com/jasonish/evedetect/output"
	"github.com/pkg/errors"
)

// ListHead aggregates the rules of one action and the outputs their
// matches are routed to.
type ListHead struct {
	LogList   output.OutputSet
	AlertList output.OutputSet

	// Default action of the list.
	Action Action

	// Index of the owning node in the RuleLists arena.
	Node int

	Rules []*Rule
}

// RuleListNode ties an action to its ListHead. There is at most one node
// per action.
type RuleListNode struct {
	Mode      Action
	EvalIndex int
	Name      string
	Head      *ListHead
}

// RuleLists is the arena of rule list nodes. Nodes keep their arena index
// for their lifetime; the evaluation order is kept separately and starts
// out as insertion order.
type RuleLists struct {
	nodes   []*RuleListNode
	ordered []*RuleListNode
}

func NewRuleLists() *RuleLists {
	return &RuleLists{}
}

// FindOrCreate returns the node for action, appending a new node at the
// end of the evaluation order if there is none.
func (l *RuleLists) FindOrCreate(action Action) *RuleListNode {
	if node := l.Get(action); node != nil {
		return node
	}
	node := &RuleListNode{
		Mode:      action,
		EvalIndex: len(l.ordered),
		Name:      action.String(),
		Head: &ListHead{
			Action: action,
			Node:   len(l.nodes),
		},
	}
	l.nodes = append(l.nodes, node)
	l.ordered = append(l.ordered, node)
	return node
}

// Get returns the node for action or nil.
func (l *RuleLists) Get(action Action) *RuleListNode {
	for _, node := range l.nodes {
		if node.Mode == action {
			return node
		}
	}
	return nil
}

// Node returns a node by arena index.
func (l *RuleLists) Node(index int) *RuleListNode {
	return l.nodes[index]
}

// Nodes returns the nodes in evaluation order. The slice must not be
// modified.
func (l *RuleLists) Nodes() []*RuleListNode {
	return l.ordered
}

func (l *RuleLists) Len() int {
	return len(l.nodes)
}

// Reorder sets the evaluation order. Listed actions that have a node come
// first, in the given order; the remaining nodes follow in their current
// relative order. Unknown or repeated actions are an error.
func (l *RuleLists) Reorder(order []Action) error {
	seen := map[Action]bool{}
	ordered := make([]*RuleListNode, 0, len(l.nodes))
	for _, action := range order {
		if action == ActionNone || action.String() == "unknown" {
			return errors.Errorf("invalid action in rule order: %d", int(action))
		}
		if seen[action] {
			return errors.Errorf("action %s listed more than once in rule order", action)
		}
		seen[action] = true
		if node := l.Get(action); node != nil {
			ordered = append(ordered, node)
		}
	}
	for _, node := range l.ordered {
		if !seen[node.Mode] {
			ordered = append(ordered, node)
		}
	}
	for i, node := range ordered {
		node.EvalIndex = i
	}
	l.ordered = ordered
	return nil
}
