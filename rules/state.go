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
	"strings"

	"github.com/pkg/errors"
)

// RuleKey identifies a rule.
type RuleKey struct {
	Gid uint32
	Sid uint32
}

func (k RuleKey) String() string {
	return fmt.Sprintf("%d:%d", k.Gid, k.Sid)
}

// RuleState overrides the compiled state of one rule. An Action of
// ActionNone keeps the rule's own action.
type RuleState struct {
	Gid     uint32
	Sid     uint32
	Enabled bool
	Action  Action
}

// ParseState builds a RuleState from its configuration form. state is
// "enabled", "disabled" or an action name, which forces that action and
// enables the rule.
func ParseState(gid uint32, sid uint32, state string) (RuleState, error) {
	if gid == 0 {
		gid = GeneratorSnortEngine
	}
	result := RuleState{Gid: gid, Sid: sid}
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "enabled", "enable":
		result.Enabled = true
	case "disabled", "disable":
	default:
		action, err := ParseAction(state)
		if err != nil {
			return result, errors.Errorf("rule state %d:%d: invalid state %q", gid, sid, state)
		}
		result.Enabled = true
		result.Action = action
	}
	return result, nil
}

// DuplicateStateError reports a second state entry for the same rule. The
// later entry replaces the earlier one.
type DuplicateStateError struct {
	Gid uint32
	Sid uint32
}

func (e *DuplicateStateError) Error() string {
	return fmt.Sprintf("duplicate rule state for %d:%d, using the last one", e.Gid, e.Sid)
}

// RuleStateTable holds the rule state overrides. It is filled before
// compilation finishes and only read afterwards.
type RuleStateTable struct {
	states map[RuleKey]RuleState
}

func NewRuleStateTable() *RuleStateTable {
	return &RuleStateTable{
		states: make(map[RuleKey]RuleState),
	}
}

// Add stores state. If the rule already had a state it is replaced and a
// *DuplicateStateError is returned.
func (t *RuleStateTable) Add(state RuleState) error {
	key := RuleKey{state.Gid, state.Sid}
	_, exists := t.states[key]
	t.states[key] = state
	if exists {
		return &DuplicateStateError{Gid: state.Gid, Sid: state.Sid}
	}
	return nil
}

func (t *RuleStateTable) Lookup(gid uint32, sid uint32) (RuleState, bool) {
	if t == nil {
		return RuleState{}, false
	}
	state, ok := t.states[RuleKey{gid, sid}]
	return state, ok
}

func (t *RuleStateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.states)
}

// Actions returns the distinct forced actions in Action order.
func (t *RuleStateTable) Actions() []Action {
	if t == nil {
		return nil
	}
	seen := map[Action]bool{}
	for _, state := range t.states {
		seen[state.Action] = true
	}
	actions := []Action{}
	for action := ActionAlert; action <= ActionSdrop; action++ {
		if seen[action] {
			actions = append(actions, action)
		}
	}
	return actions
}
