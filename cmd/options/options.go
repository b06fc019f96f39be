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

package options

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/log"
	builtin "github.com/jasonish/evedetect/options"
	"github.com/jasonish/evedetect/util"
	"github.com/spf13/pflag"
)

type ParamInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Range      string `json:"range,omitempty"`
	Default    string `json:"default,omitempty"`
	Positional bool   `json:"positional"`
	Required   bool   `json:"required"`
	Help       string `json:"help,omitempty"`
}

type OptionInfo struct {
	Name   string      `json:"name"`
	Help   string      `json:"help"`
	Protos string      `json:"protocols"`
	Params []ParamInfo `json:"parameters"`
}

// Describe lists every option registered in registry with its parameter
// schema.
func Describe(registry *ips.Registry) []OptionInfo {
	infos := []OptionInfo{}
	for _, kind := range registry.Kinds() {
		api := kind.Api
		module := api.ModCtor()
		info := OptionInfo{
			Name:   api.Name,
			Help:   api.Help,
			Protos: api.Protos.String(),
			Params: []ParamInfo{},
		}
		for _, param := range module.Params() {
			info.Params = append(info.Params, ParamInfo{
				Name:       param.Name,
				Type:       param.Type.String(),
				Range:      param.Range,
				Default:    param.Default,
				Positional: param.Positional,
				Required:   param.Required,
				Help:       param.Help,
			})
		}
		if api.ModDtor != nil {
			api.ModDtor(module)
		}
		infos = append(infos, info)
	}
	return infos
}

func printTable(w io.Writer, infos []OptionInfo) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "OPTION\tPROTOCOLS\tDESCRIPTION")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Protos, info.Help)
	}
	return tw.Flush()
}

func Main(args []string) {
	var asJson bool

	flagset := pflag.NewFlagSet("options", pflag.ExitOnError)
	flagset.BoolVar(&asJson, "json", false, "Output as JSON, with parameters")
	flagset.Parse(args)

	registry := ips.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		log.Fatal(err)
	}

	infos := Describe(registry)
	if asJson {
		fmt.Println(util.ToJsonPretty(infos))
		return
	}
	if err := printTable(os.Stdout, infos); err != nil {
		log.Fatal(err)
	}
}
