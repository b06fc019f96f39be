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

package detect

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jasonish/evedetect/config"
	"github.com/jasonish/evedetect/engine"
	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/options"
	"github.com/jasonish/evedetect/output"
	"github.com/jasonish/evedetect/packet"
	"github.com/jasonish/evedetect/rules"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detectRules = `
alert icmp any any -> any any (msg:"echo seq 5"; icmp_seq:5; sid:1;)
alert icmp any any -> any any (msg:"echo seq below 5"; icmp_seq:<5; sid:2;)
`

func writeFixture(t *testing.T, dir string) (rulesFile string, pcapFile string) {
	rulesFile = filepath.Join(dir, "test.rules")
	require.Nil(t, ioutil.WriteFile(rulesFile, []byte(detectRules), 0644))

	frames := []packet.Frame{}
	for seq := uint16(3); seq <= 6; seq++ {
		data, err := packet.CraftICMPv4("10.0.0.1", "10.0.0.2",
			packet.ICMPv4TypeEchoRequest, 0, 1, seq, []byte("ping"))
		require.Nil(t, err)
		frames = append(frames, packet.Frame{
			Data:        data,
			CaptureInfo: gopacket.CaptureInfo{Timestamp: time.Unix(1500000000, 0)},
			LinkType:    layers.LinkTypeEthernet,
		})
	}
	var pcap bytes.Buffer
	require.Nil(t, packet.WritePcap(&pcap, frames))
	pcapFile = filepath.Join(dir, "test.pcap")
	require.Nil(t, ioutil.WriteFile(pcapFile, pcap.Bytes(), 0644))
	return rulesFile, pcapFile
}

func readEvents(t *testing.T, filename string) []eve.EveEvent {
	file, err := os.Open(filename)
	require.Nil(t, err)
	defer file.Close()

	events := []eve.EveEvent{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		event, err := eve.NewEveEventFromBytes(scanner.Bytes())
		require.Nil(t, err)
		events = append(events, event)
	}
	return events
}

func TestDetect(t *testing.T) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	rulesFile, pcapFile := writeFixture(t, dir)
	eveFile := filepath.Join(dir, "eve.json")
	configFile := filepath.Join(dir, "evedetect.yaml")
	require.Nil(t, ioutil.WriteFile(configFile, []byte(`
rules:
  - `+rulesFile+`
outputs:
  - name: alerts
    type: eve
    filename: `+eveFile+`
rule-lists:
  default:
    alert: [alerts]
`), 0644))

	code := Main([]string{"-c", configFile, "--workers", "2", pcapFile})
	assert.Equal(t, 0, code)

	events := readEvents(t, eveFile)
	counts := map[uint64]int{}
	for _, event := range events {
		sid, ok := event.GetAlertSignatureId()
		require.True(t, ok)
		counts[sid]++
		assert.Contains(t, event["tags"], "evedetect")
	}
	// Seq 3 and 4 match sid 2, seq 5 matches sid 1.
	assert.Equal(t, map[uint64]int{1: 1, 2: 2}, counts)
}

func TestMainRuleStateAndProfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	rulesFile, pcapFile := writeFixture(t, dir)
	profileFile := filepath.Join(dir, "profile.pb.gz")

	code := Main([]string{"--rules", rulesFile, "--rule-state", "2:disabled",
		"--profile-out", profileFile, pcapFile})
	assert.Equal(t, 0, code)

	info, err := os.Stat(profileFile)
	require.Nil(t, err)
	assert.True(t, info.Size() > 0)
}

func TestMainErrors(t *testing.T) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	rulesFile, pcapFile := writeFixture(t, dir)

	// No rules.
	assert.Equal(t, 1, Main([]string{pcapFile}))

	// No input.
	assert.Equal(t, 1, Main([]string{"--rules", rulesFile}))

	// Bad rule state.
	assert.Equal(t, 1, Main([]string{"--rules", rulesFile, "--rule-state", "x", pcapFile}))

	// Missing pcap.
	assert.Equal(t, 1, Main([]string{"--rules", rulesFile, filepath.Join(dir, "missing.pcap")}))

	assert.Equal(t, 0, Main([]string{"--help"}))
}

func detectSeq(t *testing.T, e *engine.Engine, seq uint16) []uint32 {
	data, err := packet.CraftICMPv4("10.0.0.1", "10.0.0.2",
		packet.ICMPv4TypeEchoRequest, 0, 1, seq, []byte("ping"))
	require.Nil(t, err)
	decoder, err := packet.NewDecoder(layers.LinkTypeEthernet)
	require.Nil(t, err)
	p := &packet.Packet{}
	require.Nil(t, decoder.Decode(data, gopacket.CaptureInfo{Timestamp: time.Now()}, p))

	g := e.Acquire()
	require.NotNil(t, g)
	defer g.Release()
	sids := []uint32{}
	g.RuleSet().Detect(ips.NewWorkerContext(e.Registry().Len(), false), p,
		func(m rules.Match) {
			sids = append(sids, m.Rule.Sid)
		})
	return sids
}

func TestLoaderRereadsConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	rulesFile, _ := writeFixture(t, dir)

	registry := ips.NewRegistry()
	require.Nil(t, options.Register(registry))

	conf := config.Default()
	conf.Rules = []string{rulesFile}
	loadErr := error(nil)
	load := func() (*config.Config, error) {
		copied := *conf
		return &copied, loadErr
	}
	sinks := map[string]output.Sink{"eve": output.NewMemorySink()}

	e, err := engine.New(registry, newLoader(registry, load, sinks))
	require.Nil(t, err)
	defer e.Close()
	assert.Equal(t, []uint32{1}, detectSeq(t, e, 5))

	conf.RuleStates = []config.RuleStateConfig{{Sid: 1, State: "disabled"}}
	require.Nil(t, e.Reload())
	assert.Equal(t, []uint32{}, detectSeq(t, e, 5))
	assert.Equal(t, []uint32{2}, detectSeq(t, e, 4))

	// A bad configuration fails the reload and keeps the live rules.
	conf.RuleStates = []config.RuleStateConfig{{Sid: 2, State: "bogus"}}
	generation := e.Status().Generation
	assert.NotNil(t, e.Reload())
	assert.Equal(t, generation, e.Status().Generation)
	assert.Equal(t, []uint32{2}, detectSeq(t, e, 4))

	loadErr = errors.New("unreadable configuration")
	assert.NotNil(t, e.Reload())
	assert.Equal(t, generation, e.Status().Generation)
}

func TestLoadConfigEnvironment(t *testing.T) {
	os.Setenv("EVEDETECT_WORKERS", "3")
	os.Setenv("EVEDETECT_RULES", "a.rules,b.rules")
	defer os.Unsetenv("EVEDETECT_WORKERS")
	defer os.Unsetenv("EVEDETECT_RULES")

	flagset := newFlagSet()
	require.Nil(t, flagset.Parse([]string{}))
	conf, err := loadConfig(flagset)
	require.Nil(t, err)
	assert.Equal(t, 3, conf.Workers)
	assert.Equal(t, []string{"a.rules", "b.rules"}, conf.Rules)

	// The command line wins.
	flagset = newFlagSet()
	require.Nil(t, flagset.Parse([]string{"--workers", "5", "--rule-state", "1:3:drop"}))
	conf, err = loadConfig(flagset)
	require.Nil(t, err)
	assert.Equal(t, 5, conf.Workers)
	require.Len(t, conf.RuleStates, 1)
	assert.Equal(t, uint32(3), conf.RuleStates[0].Sid)
	assert.Equal(t, "drop", conf.RuleStates[0].State)
}
