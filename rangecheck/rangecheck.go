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

// Package rangecheck implements the numeric range predicate used by rule
// options that compare an integer packet field: "N", "<N", ">N", "N<>M"
// and the negated "!N<>M".
package rangecheck

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Op int

const (
	EQUAL Op = iota
	LESS_THAN
	GREATER_THAN
	BETWEEN
	NOT_BETWEEN
)

func (o Op) String() string {
	switch o {
	case EQUAL:
		return "eq"
	case LESS_THAN:
		return "lt"
	case GREATER_THAN:
		return "gt"
	case BETWEEN:
		return "between"
	case NOT_BETWEEN:
		return "not-between"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// RangeCheck is compared by value; two checks are the same predicate iff
// they are ==. For LESS_THAN and GREATER_THAN the bound is held in Min.
type RangeCheck struct {
	Op  Op
	Min int32
	Max int32
}

// Init resets the check to "equal to 0".
func (r *RangeCheck) Init() {
	*r = RangeCheck{}
}

// Parse replaces r with the check described by spec. r is left unchanged
// on error.
func (r *RangeCheck) Parse(spec string) error {
	parsed, err := Parse(spec)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// parseNumber allows space around the number but not inside it.
func parseNumber(spec string, s string) (int32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Errorf("invalid range %q: missing number", spec)
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 0, errors.Errorf("invalid range %q: %s out of range", spec, s)
		}
		return 0, errors.Errorf("invalid range %q: %q is not a number", spec, s)
	}
	return int32(n), nil
}

// Parse a range spec.
func Parse(spec string) (RangeCheck, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return RangeCheck{}, errors.New("empty range")
	}

	negate := false
	if strings.HasPrefix(s, "!") {
		negate = true
		s = strings.TrimSpace(s[1:])
	}

	if idx := strings.Index(s, "<>"); idx >= 0 {
		min, err := parseNumber(spec, s[:idx])
		if err != nil {
			return RangeCheck{}, err
		}
		max, err := parseNumber(spec, s[idx+2:])
		if err != nil {
			return RangeCheck{}, err
		}
		if min > max {
			return RangeCheck{}, errors.Errorf(
				"invalid range %q: min %d is greater than max %d", spec, min, max)
		}
		op := BETWEEN
		if negate {
			op = NOT_BETWEEN
		}
		return RangeCheck{Op: op, Min: min, Max: max}, nil
	}

	if negate {
		return RangeCheck{}, errors.Errorf(
			"invalid range %q: negation only applies to min<>max", spec)
	}

	switch {
	case strings.HasPrefix(s, "<"):
		bound, err := parseNumber(spec, s[1:])
		if err != nil {
			return RangeCheck{}, err
		}
		return RangeCheck{Op: LESS_THAN, Min: bound}, nil
	case strings.HasPrefix(s, ">"):
		bound, err := parseNumber(spec, s[1:])
		if err != nil {
			return RangeCheck{}, err
		}
		return RangeCheck{Op: GREATER_THAN, Min: bound}, nil
	}

	n, err := parseNumber(spec, s)
	if err != nil {
		return RangeCheck{}, err
	}
	return RangeCheck{Op: EQUAL, Min: n}, nil
}

// MustParse is like Parse but panics on error. For tests and static
// tables.
func MustParse(spec string) RangeCheck {
	r, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return r
}

func (r RangeCheck) Eval(value int32) bool {
	switch r.Op {
	case EQUAL:
		return value == r.Min
	case LESS_THAN:
		return value < r.Min
	case GREATER_THAN:
		return value > r.Min
	case BETWEEN:
		return value >= r.Min && value <= r.Max
	case NOT_BETWEEN:
		return value < r.Min || value > r.Max
	}
	return false
}

// Within reports whether the check matches at least one value in
// [lo, hi]. Options use it to reject ranges that can never match a field
// of a given width.
func (r RangeCheck) Within(lo, hi int32) bool {
	switch r.Op {
	case EQUAL:
		return r.Min >= lo && r.Min <= hi
	case LESS_THAN:
		return r.Min > lo
	case GREATER_THAN:
		return r.Min < hi
	case BETWEEN:
		return r.Max >= lo && r.Min <= hi
	case NOT_BETWEEN:
		return r.Min > lo || r.Max < hi
	}
	return false
}

// String renders the check in the same syntax Parse accepts.
func (r RangeCheck) String() string {
	switch r.Op {
	case LESS_THAN:
		return fmt.Sprintf("<%d", r.Min)
	case GREATER_THAN:
		return fmt.Sprintf(">%d", r.Min)
	case BETWEEN:
		return fmt.Sprintf("%d<>%d", r.Min, r.Max)
	case NOT_BETWEEN:
		return fmt.Sprintf("!%d<>%d", r.Min, r.Max)
	}
	return strconv.Itoa(int(r.Min))
}
