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
	"strings"

	"github.com/pkg/errors"
)

// Module binds an option's parameter schema to a configuration. The
// binding protocol is Begin, one Set per parameter present in the rule
// text (plus defaults), then End, after which the option constructor
// reads the configuration from the module.
type Module interface {
	Name() string
	Params() []Parameter
	Begin() error
	Set(v Value) error
	End() error
}

// splitArgs splits an option argument on commas that are not inside
// double quotes.
func splitArgs(args string) []string {
	var items []string
	inQuote := false
	escaped := false
	start := 0
	for i, r := range args {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			items = append(items, args[start:i])
			start = i + 1
		}
	}
	items = append(items, args[start:])

	result := items[:0]
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func findNamed(params []Parameter, name string) int {
	for i := range params {
		if !params[i].Positional && params[i].Name == name {
			return i
		}
	}
	return -1
}

func nextPositional(params []Parameter, seen []bool) int {
	for i := range params {
		if params[i].Positional && !seen[i] {
			return i
		}
	}
	return -1
}

func typedError(err error) bool {
	switch err.(type) {
	case *ParseError, *SchemaError:
		return true
	}
	return false
}

// Bind runs the module binding protocol for the argument text of one
// rule option.
func Bind(m Module, args string) error {
	params := m.Params()
	seen := make([]bool, len(params))

	if err := m.Begin(); err != nil {
		return errors.Wrapf(err, "%s: begin", m.Name())
	}

	set := func(idx int, raw string) error {
		param := &params[idx]
		if err := param.Validate(raw); err != nil {
			return &ParseError{Option: m.Name(), Param: param.Name, Value: raw, Err: err}
		}
		if err := m.Set(Value{Param: param, Raw: raw}); err != nil {
			if typedError(err) {
				return err
			}
			return &ParseError{Option: m.Name(), Param: param.Name, Value: raw, Err: err}
		}
		seen[idx] = true
		return nil
	}

	for _, item := range splitArgs(args) {
		name, rest := item, ""
		if sp := strings.IndexAny(item, " \t"); sp > 0 {
			name, rest = item[:sp], strings.TrimSpace(item[sp+1:])
		}

		if idx := findNamed(params, name); idx >= 0 {
			if seen[idx] {
				return &SchemaError{Option: m.Name(), Param: name, Reason: "given more than once"}
			}
			if err := set(idx, unquote(rest)); err != nil {
				return err
			}
			continue
		}

		idx := nextPositional(params, seen)
		if idx < 0 {
			return &SchemaError{Option: m.Name(), Param: name, Reason: "unknown parameter"}
		}
		if err := set(idx, unquote(item)); err != nil {
			return err
		}
	}

	for i := range params {
		if seen[i] {
			continue
		}
		if params[i].Default != "" {
			if err := set(i, params[i].Default); err != nil {
				return err
			}
		} else if params[i].Required {
			return &SchemaError{Option: m.Name(), Param: params[i].Name, Reason: "required parameter missing"}
		}
	}

	if err := m.End(); err != nil {
		if typedError(err) {
			return err
		}
		return &ParseError{Option: m.Name(), Value: args, Err: err}
	}

	return nil
}
