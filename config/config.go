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

package config

import (
	"io/ioutil"
	"strings"

	"github.com/jasonish/evedetect/output"
	"github.com/jasonish/evedetect/rules"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// The rule-lists entry applied to actions without their own entry.
const DefaultRuleList = "default"

type RuleStateConfig struct {
	Gid   uint32 `yaml:"gid" mapstructure:"gid" json:"gid"`
	Sid   uint32 `yaml:"sid" mapstructure:"sid" json:"sid"`
	State string `yaml:"state" mapstructure:"state" json:"state"`
}

// RuleListConfig names the outputs the matches of one rule list go to.
type RuleListConfig struct {
	Alert []string `yaml:"alert" mapstructure:"alert" json:"alert"`
	Log   []string `yaml:"log" mapstructure:"log" json:"log"`
}

type GeoipConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Database string `yaml:"database" mapstructure:"database" json:"database"`
}

type HttpConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Address        string `yaml:"address" mapstructure:"address" json:"address"`
	RequestLogging bool   `yaml:"request-logging" mapstructure:"request-logging" json:"request-logging"`
}

type Config struct {
	Rules      []string          `yaml:"rules" mapstructure:"rules" json:"rules"`
	Strict     bool              `yaml:"strict" mapstructure:"strict" json:"strict"`
	Workers    int               `yaml:"workers" mapstructure:"workers" json:"workers"`
	Profile    bool              `yaml:"profile" mapstructure:"profile" json:"profile"`
	RuleOrder  []string          `yaml:"rule-order" mapstructure:"rule-order" json:"rule-order"`
	RuleStates []RuleStateConfig `yaml:"rule-states" mapstructure:"rule-states" json:"rule-states"`

	// Add the raw rule text to alerts.
	RuleText bool `yaml:"rule-text" mapstructure:"rule-text" json:"rule-text"`

	Outputs   []output.Config           `yaml:"outputs" mapstructure:"outputs" json:"outputs"`
	RuleLists map[string]RuleListConfig `yaml:"rule-lists" mapstructure:"rule-lists" json:"rule-lists"`

	Geoip GeoipConfig `yaml:"geoip" mapstructure:"geoip" json:"geoip"`
	Http  HttpConfig  `yaml:"http" mapstructure:"http" json:"http"`
}

const DefaultHttpAddress = "127.0.0.1:5737"

// Default is the configuration used when no file is given: alerts as EVE
// JSON on stdout.
func Default() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

// setDefaults fills in what the configuration left out. Outputs and rule
// lists are only defaulted together, when neither is configured.
func (c *Config) setDefaults() {
	if len(c.Outputs) == 0 && len(c.RuleLists) == 0 {
		c.Outputs = []output.Config{
			{Name: "eve", Type: "eve"},
		}
		c.RuleLists = map[string]RuleListConfig{
			DefaultRuleList: {Alert: []string{"eve"}},
		}
	}
	if c.Http.Address == "" {
		c.Http.Address = DefaultHttpAddress
	}
}

func LoadConfig(filename string) (*Config, error) {
	var config Config
	if err := LoadConfigTo(filename, &config); err != nil {
		return nil, err
	}
	config.setDefaults()
	return &config, nil
}

func LoadConfigTo(filename string, output interface{}) error {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(buf, output); err != nil {
		return errors.Wrapf(err, "failed to parse %s", filename)
	}
	return nil
}

// Decode fills a Config from loosely typed settings, such as the merged
// view of viper. Values are converted where it makes sense: "4" is a
// valid worker count and "a,b" a valid list.
func Decode(settings map[string]interface{}) (*Config, error) {
	config := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           config,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	config.setDefaults()
	return config, nil
}

// ParseRuleStateSpec parses the command line form of a rule state,
// "gid:sid:state" or "sid:state".
func ParseRuleStateSpec(spec string) (RuleStateConfig, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	var gid, sid interface{}
	var state string
	switch len(parts) {
	case 2:
		gid, sid, state = rules.GeneratorSnortEngine, parts[0], parts[1]
	case 3:
		gid, sid, state = parts[0], parts[1], parts[2]
	default:
		return RuleStateConfig{}, errors.Errorf("invalid rule state %q, expected gid:sid:state", spec)
	}
	g, err := cast.ToUint32E(gid)
	if err != nil {
		return RuleStateConfig{}, errors.Errorf("invalid gid in rule state %q", spec)
	}
	s, err := cast.ToUint32E(sid)
	if err != nil || s == 0 {
		return RuleStateConfig{}, errors.Errorf("invalid sid in rule state %q", spec)
	}
	return RuleStateConfig{Gid: g, Sid: s, State: state}, nil
}

// States builds the rule state table. Invalid entries fail the whole
// table; duplicates are returned as warnings with the last entry kept.
func (c *Config) States() (*rules.RuleStateTable, []error, error) {
	table := rules.NewRuleStateTable()
	warnings := []error{}
	for _, entry := range c.RuleStates {
		state, err := rules.ParseState(entry.Gid, entry.Sid, entry.State)
		if err != nil {
			return nil, nil, err
		}
		if err := table.Add(state); err != nil {
			warnings = append(warnings, err)
		}
	}
	return table, warnings, nil
}

func (c *Config) RuleOrderActions() ([]rules.Action, error) {
	actions := []rules.Action{}
	for _, name := range c.RuleOrder {
		action, err := rules.ParseAction(name)
		if err != nil {
			return nil, errors.Wrap(err, "rule-order")
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// OpenOutputs opens every configured output, by name. On error the outputs
// opened so far are closed.
func (c *Config) OpenOutputs() (map[string]output.Sink, error) {
	sinks := map[string]output.Sink{}
	for _, oc := range c.Outputs {
		if oc.Name == "" {
			oc.Name = oc.Type
		}
		if _, ok := sinks[oc.Name]; ok {
			CloseOutputs(sinks)
			return nil, errors.Errorf("duplicate output name: %s", oc.Name)
		}
		sink, err := output.Open(oc)
		if err != nil {
			CloseOutputs(sinks)
			return nil, err
		}
		sinks[oc.Name] = sink
	}
	return sinks, nil
}

func CloseOutputs(sinks map[string]output.Sink) {
	for _, sink := range sinks {
		output.Close(sink)
	}
}

func lookupOutputs(sinks map[string]output.Sink, names []string) (output.OutputSet, error) {
	set := output.OutputSet{}
	for _, name := range names {
		sink, ok := sinks[name]
		if !ok {
			return nil, errors.Errorf("unknown output: %s", name)
		}
		set = append(set, sink)
	}
	return set, nil
}

// Routes resolves the rule-lists section against the opened outputs.
func (c *Config) Routes(sinks map[string]output.Sink) (map[rules.Action]rules.Route, rules.Route, error) {
	routes := map[rules.Action]rules.Route{}
	var defaultRoute rules.Route
	for name, list := range c.RuleLists {
		alert, err := lookupOutputs(sinks, list.Alert)
		if err != nil {
			return nil, defaultRoute, errors.Wrapf(err, "rule-lists.%s", name)
		}
		log, err := lookupOutputs(sinks, list.Log)
		if err != nil {
			return nil, defaultRoute, errors.Wrapf(err, "rule-lists.%s", name)
		}
		route := rules.Route{Alert: alert, Log: log}
		if name == DefaultRuleList {
			defaultRoute = route
			continue
		}
		action, err := rules.ParseAction(name)
		if err != nil {
			return nil, defaultRoute, errors.Wrap(err, "rule-lists")
		}
		routes[action] = route
	}
	return routes, defaultRoute, nil
}

// CompilerOptions gathers everything the rule compiler needs from the
// configuration. Warnings are non-fatal problems to report.
func (c *Config) CompilerOptions(sinks map[string]output.Sink) (rules.CompilerOptions, []error, error) {
	options := rules.CompilerOptions{Strict: c.Strict}

	states, warnings, err := c.States()
	if err != nil {
		return options, nil, err
	}
	options.States = states

	if options.RuleOrder, err = c.RuleOrderActions(); err != nil {
		return options, nil, err
	}

	if options.Routes, options.DefaultRoute, err = c.Routes(sinks); err != nil {
		return options, nil, err
	}

	return options, warnings, nil
}
