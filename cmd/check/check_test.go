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
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/jasonish/evedetect/config"
	"github.com/jasonish/evedetect/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkRules = `
alert icmp any any -> any any (msg:"one"; icmp_seq:5; sid:1;)
alert icmp any any -> any any (msg:"two"; icmp_seq:5; itype:8; sid:2;)
drop icmp any any -> any any (msg:"bad"; icmp_seq:10<>1; sid:3;)
alert icmp any any -> any any (msg:"dup"; icmp_seq:5; sid:1;)
`

func writeRules(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir("", "evedetect-check")
	require.Nil(t, err)
	filename := filepath.Join(dir, "check.rules")
	require.Nil(t, ioutil.WriteFile(filename, []byte(checkRules), 0644))
	return filename, func() {
		os.RemoveAll(dir)
	}
}

func TestCheck(t *testing.T) {
	filename, cleanup := writeRules(t)
	defer cleanup()

	baseline := options.Live()

	conf := config.Default()
	conf.Rules = []string{filename}
	conf.RuleStates = []config.RuleStateConfig{
		{Sid: 2, State: "disabled"},
		{Sid: 2, State: "enabled"},
	}

	report, err := Check(conf)
	require.Nil(t, err)
	assert.Equal(t, 2, report.Rules)
	assert.Equal(t, 2, report.Options)
	assert.Equal(t, 1, report.Shared)
	assert.Equal(t, 1, report.Duplicates)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "check.rules")
	assert.Len(t, report.Warnings, 1)
	require.Len(t, report.Lists, 1)
	assert.Equal(t, "alert", report.Lists[0].Name)

	// The rule set is released once checked.
	assert.Equal(t, baseline, options.Live())

	var buf bytes.Buffer
	printReport(&buf, report)
	assert.Contains(t, buf.String(), "2 rules, 2 options (1 shared), 1 duplicates, 1 errors")
}

func TestCheckMissingRules(t *testing.T) {
	conf := config.Default()
	conf.Rules = []string{"/nonexistent/*.rules"}
	_, err := Check(conf)
	assert.NotNil(t, err)
}

func TestMainExitCodes(t *testing.T) {
	filename, cleanup := writeRules(t)
	defer cleanup()

	assert.Equal(t, 2, Main([]string{filename}))
	assert.Equal(t, 2, Main([]string{"--json", "--rules", filename}))
	assert.Equal(t, 1, Main([]string{}))
	assert.Equal(t, 1, Main([]string{"-c", "/nonexistent.yaml", filename}))
}
