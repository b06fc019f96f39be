/* Copyright (c) 2017 Jason Ish
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

package check

import (
	"fmt"
	"io"
	"os"

	"github.com/jasonish/evedetect/config"
	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/options"
	"github.com/jasonish/evedetect/rules"
	"github.com/jasonish/evedetect/util"
	"github.com/spf13/pflag"
)

type ListReport struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	Rules  int    `json:"rules"`
}

// Report is the result of checking a set of rule files.
type Report struct {
	Rules      int          `json:"rules"`
	Options    int          `json:"options"`
	Shared     int          `json:"shared_options"`
	Duplicates int          `json:"duplicates"`
	Errors     []string     `json:"errors"`
	Warnings   []string     `json:"warnings"`
	Lists      []ListReport `json:"lists"`
}

// Check compiles the rules of conf in tolerant mode and reports on the
// result.
func Check(conf *config.Config) (*Report, error) {
	registry := ips.NewRegistry()
	if err := options.Register(registry); err != nil {
		return nil, err
	}

	report := &Report{
		Errors:   []string{},
		Warnings: []string{},
		Lists:    []ListReport{},
	}

	states, warnings, err := conf.States()
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		report.Warnings = append(report.Warnings, warning.Error())
	}
	order, err := conf.RuleOrderActions()
	if err != nil {
		return nil, err
	}

	compiler := rules.NewCompiler(registry, rules.CompilerOptions{
		States:    states,
		RuleOrder: order,
	})
	if err := compiler.AddPaths(conf.Rules); err != nil {
		compiler.Discard()
		return nil, err
	}
	for _, err := range compiler.Errors() {
		report.Errors = append(report.Errors, err.Error())
	}
	report.Duplicates = compiler.Duplicates()

	set, err := compiler.Finish()
	if err != nil {
		return nil, err
	}
	defer set.Close()

	report.Rules = set.RuleCount()
	report.Options = set.OptionCount()
	report.Shared = set.SharedOptions()
	for _, node := range set.Lists().Nodes() {
		report.Lists = append(report.Lists, ListReport{
			Name:   node.Name,
			Action: node.Mode.String(),
			Rules:  len(node.Head.Rules),
		})
	}
	return report, nil
}

func printReport(w io.Writer, report *Report) {
	for _, err := range report.Errors {
		fmt.Fprintf(w, "error: %s\n", err)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	for _, list := range report.Lists {
		fmt.Fprintf(w, "%-8s %d rules\n", list.Name, list.Rules)
	}
	fmt.Fprintf(w, "%d rules, %d options (%d shared), %d duplicates, %d errors\n",
		report.Rules, report.Options, report.Shared, report.Duplicates,
		len(report.Errors))
}

// Main returns 0 if all rules compiled, 2 if some failed and 1 if
// checking was not possible.
func Main(args []string) int {
	var configFilename string
	var ruleFiles []string
	var asJson bool

	flagset := pflag.NewFlagSet("check", pflag.ContinueOnError)
	flagset.StringVarP(&configFilename, "config", "c", "", "Configuration file")
	flagset.StringSliceVarP(&ruleFiles, "rules", "r", nil, "Rule file, directory or glob (repeatable)")
	flagset.BoolVar(&asJson, "json", false, "Output the report as JSON")
	if err := flagset.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 1
	}

	conf := config.Default()
	if configFilename != "" {
		var err error
		conf, err = config.LoadConfig(configFilename)
		if err != nil {
			log.Error("%v", err)
			return 1
		}
	}
	conf.Rules = append(conf.Rules, ruleFiles...)
	conf.Rules = append(conf.Rules, flagset.Args()...)
	if len(conf.Rules) == 0 {
		log.Error("No rules to check")
		return 1
	}

	report, err := Check(conf)
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	if asJson {
		fmt.Println(util.ToJsonPretty(report))
	} else {
		printReport(os.Stdout, report)
	}

	if len(report.Errors) > 0 {
		return 2
	}
	return 0
}
