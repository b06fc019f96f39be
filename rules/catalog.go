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
	"strings"

	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/go-idsrules"
)

// Catalog is the raw text of the rules in a set of rule files, by gid and
// sid. It reads the files independently of the compiler, so rules that
// failed to compile can still be looked up.
type Catalog struct {
	rules map[RuleKey]idsrules.Rule
}

func catalogKey(gid uint64, sid uint64) RuleKey {
	if gid == 0 {
		gid = uint64(GeneratorSnortEngine)
	}
	return RuleKey{Gid: uint32(gid), Sid: uint32(sid)}
}

func (c *Catalog) loadFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	ruleReader := idsrules.NewRuleReader(file)

	count := 0

	for {
		rule, err := ruleReader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if parseError, ok := err.(*idsrules.RuleParseError); ok {
				log.Debug("Rule parse error: %v", parseError)
				continue
			}
			return err
		}

		key := catalogKey(rule.Gid, rule.Sid)
		if _, ok := c.rules[key]; ok {
			log.Debug("A rule with ID %s already exists.", key)
		} else {
			count++
			c.rules[key] = rule
		}
	}

	log.Debug("Cataloged %d rules from %s", count, filename)

	return nil
}

// NewCatalog loads the rules found at paths, which are handled as in
// Compiler.AddPaths. Unreadable paths are logged and skipped.
func NewCatalog(paths []string) *Catalog {
	catalog := &Catalog{
		rules: make(map[RuleKey]idsrules.Rule),
	}

	for _, path := range paths {
		fileInfo, err := os.Stat(path)
		if err != nil {
			matches, err := filepath.Glob(path)
			if err != nil {
				log.Warning("No matches for %s: %v", path, err)
				continue
			}
			for _, m := range matches {
				if err := catalog.loadFile(m); err != nil {
					log.Warning("Failed to load %s: %v", m, err)
				}
			}
		} else if fileInfo.IsDir() {
			infos, err := ioutil.ReadDir(path)
			if err != nil {
				log.Warning("Failed to read %s: %v", path, err)
				continue
			}
			for _, info := range infos {
				if !strings.HasSuffix(info.Name(), ".rules") {
					continue
				}
				filename := filepath.Join(path, info.Name())
				if err := catalog.loadFile(filename); err != nil {
					log.Warning("Failed to load %s: %v", filename, err)
				}
			}
		} else if err := catalog.loadFile(path); err != nil {
			log.Warning("Failed to load %s: %v", path, err)
		}
	}

	return catalog
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// FindById returns the raw rule with the given gid and sid. A gid of 0
// is taken as 1.
func (c *Catalog) FindById(gid uint64, sid uint64) (string, bool) {
	if c == nil || c.rules == nil {
		return "", false
	}
	rule, ok := c.rules[catalogKey(gid, sid)]
	if !ok {
		return "", false
	}
	return rule.Raw, true
}

// Filter implements eve.EveFilter, adding the rule text to alerts.
func (c *Catalog) Filter(event eve.EveEvent) {
	if sid, ok := event.GetAlertSignatureId(); ok {
		gid, _ := event.GetAlertGeneratorId()
		if raw, ok := c.FindById(gid, sid); ok {
			event["rule"] = raw
		}
	}
}
