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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamBool
	// One of the " | " separated words in Range.
	ParamEnum
	// A flag that takes no value; its presence sets it.
	ParamImplied
)

func (t ParamType) String() string {
	switch t {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamBool:
		return "bool"
	case ParamEnum:
		return "enum"
	case ParamImplied:
		return "implied"
	}
	return "unknown"
}

// Parameter describes one argument an option accepts.
type Parameter struct {
	Name string
	Type ParamType

	// Default is applied by Bind when the parameter is absent and the
	// default is not empty.
	Default string

	// Allowed values: "min:max" for ints (either side may be empty), the
	// choices for enums, the maximum length for strings.
	Range string

	Help string

	// Positional parameters are given without their name, in order.
	Positional bool
	Required   bool
}

func parseIntBounds(r string) (min, max int64, hasMin, hasMax bool, err error) {
	parts := strings.SplitN(r, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false, false, errors.Errorf("bad int range %q", r)
	}
	if parts[0] != "" {
		min, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return
		}
		hasMin = true
	}
	if parts[1] != "" {
		max, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return
		}
		hasMax = true
	}
	return
}

// Validate checks value against the parameter type and allowed range.
func (p *Parameter) Validate(value string) error {
	switch p.Type {
	case ParamInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.Errorf("%q is not an integer", value)
		}
		if p.Range == "" {
			return nil
		}
		min, max, hasMin, hasMax, err := parseIntBounds(p.Range)
		if err != nil {
			return err
		}
		if hasMin && n < min || hasMax && n > max {
			return errors.Errorf("%d is out of range %s", n, p.Range)
		}
	case ParamBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return errors.Errorf("%q is not a boolean", value)
		}
	case ParamEnum:
		for _, choice := range strings.Split(p.Range, "|") {
			if strings.TrimSpace(choice) == value {
				return nil
			}
		}
		return errors.Errorf("%q is not one of %s", value, p.Range)
	case ParamImplied:
		if value != "" {
			return errors.Errorf("takes no value")
		}
	case ParamString:
		if value == "" {
			return errors.New("empty value")
		}
		if p.Range != "" {
			max, err := strconv.Atoi(p.Range)
			if err == nil && len(value) > max {
				return errors.Errorf("longer than %d characters", max)
			}
		}
	}
	return nil
}

// Value is a validated parameter value handed to Module.Set.
type Value struct {
	Param *Parameter
	Raw   string
}

func (v Value) Is(name string) bool {
	return v.Param != nil && v.Param.Name == name
}

func (v Value) String() string {
	return v.Raw
}

// Int returns the value as an integer. The value has been validated, so
// errors only occur for non-int parameters.
func (v Value) Int() int64 {
	n, _ := strconv.ParseInt(v.Raw, 10, 64)
	return n
}

func (v Value) Bool() bool {
	if v.Param != nil && v.Param.Type == ParamImplied {
		return true
	}
	b, _ := strconv.ParseBool(v.Raw)
	return b
}
