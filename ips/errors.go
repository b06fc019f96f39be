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
)

// ParseError is returned when an option argument fails validation, for
// example a malformed range.
type ParseError struct {
	Option string
	Param  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: invalid argument %q: %v", e.Option, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: invalid value %q for %s: %v", e.Option, e.Value, e.Param, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError is returned when rule text does not fit an option's
// parameter schema: unknown parameters, missing required ones, or an
// unknown option keyword.
type SchemaError struct {
	Option string
	Param  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Option, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Option, e.Param, e.Reason)
}
