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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/output"
	"github.com/jasonish/evedetect/packet"
	"github.com/jasonish/evedetect/ruleparser"
	"github.com/pkg/errors"
)

// Options handled by the compiler itself rather than the registry.
var metadataOptions = map[string]bool{
	"msg":       true,
	"sid":       true,
	"gid":       true,
	"rev":       true,
	"classtype": true,
	"priority":  true,
	"reference": true,
	"metadata":  true,
}

// Route is where the matches of a rule list go.
type Route struct {
	Alert output.OutputSet
	Log   output.OutputSet
}

type CompilerOptions struct {
	// Fail Finish if any rule failed to compile. Otherwise bad rules are
	// dropped and logged.
	Strict bool

	States *RuleStateTable

	// Evaluation order of the rule lists. Actions not listed follow in
	// order of first use.
	RuleOrder []Action

	// Per action routes; actions without one use DefaultRoute.
	Routes       map[Action]Route
	DefaultRoute Route
}

// Compiler builds a RuleSet from rule text.
type Compiler struct {
	registry *ips.Registry
	options  CompilerOptions

	table *ips.OptionTable
	lists *RuleLists
	rules map[RuleKey]*Rule

	errors     []error
	duplicates int
}

func NewCompiler(registry *ips.Registry, options CompilerOptions) *Compiler {
	return &Compiler{
		registry: registry,
		options:  options,
		table:    ips.NewOptionTable(),
		lists:    NewRuleLists(),
		rules:    make(map[RuleKey]*Rule),
	}
}

func (c *Compiler) fail(err *RuleError) error {
	c.errors = append(c.errors, err)
	return err
}

// AddRule compiles a parsed rule. A rule with the same gid and sid as an
// earlier rule is ignored with a warning.
func (c *Compiler) AddRule(parsed ruleparser.Rule, location Location) error {
	gid := parsed.Gid
	if gid == 0 {
		gid = GeneratorSnortEngine
	}
	ruleErr := func(err error) error {
		return c.fail(&RuleError{Location: location, Gid: gid, Sid: parsed.Sid, Err: err})
	}

	if parsed.Sid == 0 {
		return ruleErr(errors.New("rule has no sid"))
	}

	action, err := ParseAction(parsed.Action)
	if err != nil {
		return ruleErr(err)
	}

	protos, ok := packet.ProtoBitsForRule(parsed.Proto)
	if !ok {
		return ruleErr(errors.Errorf("unsupported protocol: %s", parsed.Proto))
	}

	rule := &Rule{
		Gid:      gid,
		Sid:      parsed.Sid,
		Rev:      parsed.Rev,
		Msg:      parsed.Msg,
		Action:   action,
		Enabled:  parsed.Enabled,
		Protos:   protos,
		Raw:      parsed.Raw,
		Location: location,
	}

	if existing, ok := c.rules[rule.Key()]; ok {
		log.Warning("%s: a rule with ID %s already exists at %s, ignoring",
			location, rule.Key(), existing.Location)
		c.duplicates++
		return nil
	}

	for _, option := range parsed.Options {
		if metadataOptions[option.Option] {
			switch option.Option {
			case "classtype":
				rule.Classtype = option.Args
			case "priority":
				priority, err := strconv.Atoi(option.Args)
				if err != nil {
					return ruleErr(&ips.ParseError{Option: option.Option,
						Value: option.Args, Err: err})
				}
				rule.Priority = priority
			}
			continue
		}

		kind, ok := c.registry.Get(option.Option)
		if !ok {
			return ruleErr(&ips.SchemaError{Option: option.Option,
				Reason: "unknown rule option"})
		}

		inst, err := kind.Build(option.Args)
		if err != nil {
			return ruleErr(err)
		}

		inst, _ = c.table.Intern(inst)
		rule.Options = append(rule.Options, inst)
	}

	c.rules[rule.Key()] = rule
	head := c.lists.FindOrCreate(action).Head
	head.Rules = append(head.Rules, rule)

	return nil
}

// AddReader compiles every rule read from reader. Rule errors are
// recorded; only read errors are returned.
func (c *Compiler) AddReader(reader io.Reader, name string) error {
	ruleReader := ruleparser.NewRuleReader(reader)
	for {
		parsed, err := ruleReader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if parseErr, ok := err.(*ruleparser.RuleParseError); ok {
				c.fail(&RuleError{
					Location: Location{File: name, Line: parseErr.Line},
					Err:      parseErr.Err,
				})
				continue
			}
			return errors.Wrapf(err, "failed to read %s", name)
		}
		c.AddRule(parsed, Location{File: name, Line: parsed.Line})
	}
}

func (c *Compiler) AddFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	before := len(c.rules)
	if err := c.AddReader(file, filename); err != nil {
		return err
	}
	log.Debug("Loaded %d rules from %s", len(c.rules)-before, filename)
	return nil
}

// AddPaths loads rule files. Each path may be a file, a directory whose
// *.rules files are loaded, or a glob.
func (c *Compiler) AddPaths(paths []string) error {
	for _, path := range paths {
		fileInfo, err := os.Stat(path)
		if err != nil {
			matches, err := filepath.Glob(path)
			if err != nil || len(matches) == 0 {
				return errors.Errorf("no rule files match %s", path)
			}
			for _, m := range matches {
				if err := c.AddFile(m); err != nil {
					return err
				}
			}
		} else if fileInfo.IsDir() {
			infos, err := ioutil.ReadDir(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", path)
			}
			for _, info := range infos {
				if info.IsDir() || !strings.HasSuffix(info.Name(), ".rules") {
					continue
				}
				if err := c.AddFile(filepath.Join(path, info.Name())); err != nil {
					return err
				}
			}
		} else if err := c.AddFile(path); err != nil {
			return err
		}
	}
	return nil
}

// Errors returns the rule errors recorded so far. They are not logged;
// reporting them is left to the caller.
func (c *Compiler) Errors() []error {
	return c.errors
}

func (c *Compiler) Duplicates() int {
	return c.duplicates
}

// Discard releases every option instance built so far. Use it instead of
// Finish when loading is abandoned.
func (c *Compiler) Discard() {
	c.table.Release()
}

// Finish builds the RuleSet. The compiler must not be used afterwards. On
// error every option instance built so far is released.
func (c *Compiler) Finish() (*RuleSet, error) {
	if c.options.Strict && len(c.errors) > 0 {
		c.table.Release()
		return nil, &CompileError{Errors: c.errors}
	}

	// Rules forced to another action are routed through that action's
	// node.
	for _, action := range c.options.States.Actions() {
		c.lists.FindOrCreate(action)
	}

	if err := c.lists.Reorder(c.options.RuleOrder); err != nil {
		c.table.Release()
		return nil, err
	}

	for _, node := range c.lists.Nodes() {
		route, ok := c.options.Routes[node.Mode]
		if !ok {
			route = c.options.DefaultRoute
		}
		node.Head.AlertList = route.Alert
		node.Head.LogList = route.Log
	}

	states := c.options.States
	if states == nil {
		states = NewRuleStateTable()
	}

	ruleSet := newRuleSet(c.lists, states, c.table, len(c.rules))

	log.Info("Compiled %d rules with %d options (%d shared), %d errors",
		len(c.rules), c.table.Len(), c.table.Collapsed(), len(c.errors))

	return ruleSet, nil
}
