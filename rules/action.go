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
	"strings"

	"github.com/pkg/errors"
)

// Action is the action of a rule, and the mode of the rule list it is
// kept in.
type Action int

const (
	ActionNone Action = iota
	ActionAlert
	ActionLog
	ActionPass
	ActionDrop
	ActionReject
	ActionSdrop
)

var actionNames = []string{
	ActionNone:   "none",
	ActionAlert:  "alert",
	ActionLog:    "log",
	ActionPass:   "pass",
	ActionDrop:   "drop",
	ActionReject: "reject",
	ActionSdrop:  "sdrop",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// ParseAction parses a rule action name. "none" is not a rule action and
// is rejected.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, actionName := range actionNames {
		if i != int(ActionNone) && actionName == name {
			return Action(i), nil
		}
	}
	return ActionNone, errors.Errorf("unknown action: %q", name)
}

// Blocks is true for actions that stop the packet.
func (a Action) Blocks() bool {
	return a == ActionDrop || a == ActionReject || a == ActionSdrop
}

// Alerts is true for actions whose matches go to the alert outputs.
func (a Action) Alerts() bool {
	return a == ActionAlert || a == ActionDrop || a == ActionReject
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
