// The MIT License (MIT)
// Copyright (c) 2016 Jason Ish
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use, copy,
// modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS
// BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN
// ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ruleparser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrIncomplete is returned for rule text that ends before the closing
// parenthesis of the option list.
var ErrIncomplete = errors.New("incomplete rule")

// RuleParseError is returned by RuleReader for a line that is not a
// valid rule.
type RuleParseError struct {
	Line int
	Err  error
}

func (e *RuleParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RuleParseError) Cause() error {
	return e.Err
}

// Remove leading and trailing quotes from a string.
func trimQuotes(buf string) string {
	if len(buf) >= 2 && buf[0] == '"' && buf[len(buf)-1] == '"' {
		return buf[1 : len(buf)-1]
	}
	return buf
}

func trimLeadingWhiteSpace(buf string) string {
	return strings.TrimLeft(buf, " \t")
}

func splitAt(buf string, sep string) (string, string) {
	var trailing string
	parts := strings.SplitN(buf, sep, 2)
	if len(parts) > 1 {
		trailing = strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(parts[0]), trailing
}

func validateDirection(direction string) bool {
	return direction == "->" || direction == "<>"
}

// Parse the next rule option from the provided rule.
//
// The option, argument and the remainder of the rule are returned.
func parseOption(rule string) (string, string, string, error) {
	var option string
	var arg string

	rule = trimLeadingWhiteSpace(rule)

	hasArg := false
	optend := strings.IndexFunc(rule, func(r rune) bool {
		switch r {
		case ';':
			return true
		case ':':
			hasArg = true
			return true
		}
		return false
	})
	if optend < 0 {
		return option, arg, rule, errors.New("unterminated option")
	}

	option = strings.TrimSpace(rule[0:optend])
	rule = rule[optend+1:]

	if hasArg {
		if len(rule) == 0 {
			return option, arg, rule, errors.Errorf("%s: no argument", option)
		}
		escaped := false
		inQuote := false
		argend := strings.IndexFunc(rule, func(r rune) bool {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inQuote = !inQuote
			case r == ';' && !inQuote:
				return true
			}
			return false
		})
		if argend < 0 {
			return option, arg, rule,
				errors.Errorf("%s: unterminated option argument", option)
		}
		arg = strings.TrimSpace(rule[:argend])
		rule = rule[argend+1:]
	}

	return option, trimQuotes(arg), rule, nil
}

func parseId(name string, arg string) (uint32, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, errors.Errorf("failed to parse %s: %s", name, arg)
	}
	return uint32(id), nil
}

// Parse an IDS rule from the provided string buffer.
func Parse(buf string) (Rule, error) {
	rule := Rule{
		Raw: buf,
	}

	buf = trimLeadingWhiteSpace(buf)

	if !strings.HasPrefix(buf, "#") {
		rule.Enabled = true
	} else {
		buf = strings.TrimPrefix(buf, "#")
		buf = trimLeadingWhiteSpace(buf)
	}

	// The seven header fields, the last followed by the option list.
	header := []*string{
		&rule.Action,
		&rule.Proto,
		&rule.SourceAddr,
		&rule.SourcePort,
		&rule.Direction,
		&rule.DestAddr,
		&rule.DestPort,
	}
	rem := buf
	for _, field := range header {
		*field, rem = splitAt(rem, " ")
		if len(rem) == 0 {
			return rule, ErrIncomplete
		}
	}
	if !validateDirection(rule.Direction) {
		return rule, errors.Errorf("invalid direction: %s", rule.Direction)
	}

	if rem[0] != '(' {
		return rule, errors.Errorf("expected (, got %s", rem[0:1])
	}
	buf = rem[1:]

	var option string
	var arg string
	var err error
	for {
		buf = trimLeadingWhiteSpace(buf)
		if len(buf) == 0 {
			return rule, ErrIncomplete
		}

		if strings.HasPrefix(buf, ")") {
			break
		}

		option, arg, buf, err = parseOption(buf)
		if err != nil {
			return rule, err
		}

		rule.Options = append(rule.Options, RuleOption{option, arg})

		switch option {
		case "msg":
			rule.Msg = arg
		case "sid":
			if rule.Sid, err = parseId(option, arg); err != nil {
				return rule, err
			}
		case "gid":
			if rule.Gid, err = parseId(option, arg); err != nil {
				return rule, err
			}
		case "rev":
			if rule.Rev, err = parseId(option, arg); err != nil {
				return rule, err
			}
		}
	}

	return rule, nil
}

// ParseReader parses multiple rules from a reader, skipping lines that
// fail to parse.
func ParseReader(reader io.Reader) ([]Rule, error) {
	rules := make([]Rule, 0)

	ruleReader := NewRuleReader(reader)

	for {
		rule, err := ruleReader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if _, ok := err.(*RuleParseError); ok {
				continue
			}
			return rules, err
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// RuleReader parses rules one by one from an underlying reader.
type RuleReader struct {
	reader *bufio.Reader
	line   int
}

// NewRuleReader creates a new RuleReader reading from a reader.
func NewRuleReader(reader io.Reader) *RuleReader {
	return &RuleReader{
		reader: bufio.NewReader(reader),
	}
}

func (r *RuleReader) readLine() (string, error) {
	bytes, err := r.reader.ReadBytes('\n')
	if err != nil && len(bytes) == 0 {
		return "", err
	}
	r.line++
	return strings.TrimSpace(string(bytes)), nil
}

// Next returns the next rule read from the reader. Empty lines and
// comments are skipped; a commented out rule is returned disabled. Any
// other line that doesn't parse as a rule is returned as a
// *RuleParseError, and reading may continue after it.
func (r *RuleReader) Next() (Rule, error) {
	ruleString := ""
	start := 0

	for {
		line, err := r.readLine()
		if err != nil {
			if err == io.EOF && ruleString != "" {
				return Rule{}, &RuleParseError{Line: start, Err: ErrIncomplete}
			}
			return Rule{}, err
		}

		if len(line) == 0 {
			continue
		}

		if ruleString == "" {
			start = r.line
		}

		if strings.HasSuffix(line, "\\") {
			ruleString += line[0 : len(line)-1]
			continue
		}

		ruleString += line

		rule, err := Parse(ruleString)
		if err != nil {
			if strings.HasPrefix(ruleString, "#") {
				ruleString = ""
				continue
			}
			return Rule{}, &RuleParseError{Line: start, Err: err}
		}
		rule.Line = start
		return rule, nil
	}
}
