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

package engine

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
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

const testRules = `
alert icmp any any -> any any (msg:"echo seq 5"; icmp_seq:5; sid:1; rev:2; classtype:misc-activity; priority:3;)
alert icmp any any -> any any (msg:"echo seq below 5"; icmp_seq:<5; sid:2;)
log icmp any any -> any any (msg:"any echo"; itype:8; sid:3;)
`

type testLoader struct {
	registry *ips.Registry
	options  rules.CompilerOptions

	lock  sync.Mutex
	text  string
	fail  bool
	loads int
}

func newTestLoader(t *testing.T) *testLoader {
	registry := ips.NewRegistry()
	require.Nil(t, options.Register(registry))
	return &testLoader{registry: registry, text: testRules}
}

func (l *testLoader) load() (*rules.RuleSet, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.loads++
	if l.fail {
		return nil, errors.New("rule files are broken")
	}
	compiler := rules.NewCompiler(l.registry, l.options)
	if err := compiler.AddReader(strings.NewReader(l.text), "test.rules"); err != nil {
		return nil, err
	}
	return compiler.Finish()
}

func echoFrame(t *testing.T, seq uint16) packet.Frame {
	data, err := packet.CraftICMPv4("10.1.1.1", "10.1.1.2",
		packet.ICMPv4TypeEchoRequest, 0, 9, seq, []byte("ping"))
	require.Nil(t, err)
	return packet.Frame{
		Data: data,
		CaptureInfo: gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(data),
			Length:        len(data),
		},
		LinkType: layers.LinkTypeEthernet,
	}
}

func TestNewEngineFailure(t *testing.T) {
	loader := newTestLoader(t)
	loader.fail = true
	_, err := New(loader.registry, loader.load)
	assert.NotNil(t, err)
}

func TestReloadKeepsLiveSetOnFailure(t *testing.T) {
	loader := newTestLoader(t)
	engine, err := New(loader.registry, loader.load)
	require.Nil(t, err)
	defer engine.Close()

	before := engine.Status()
	assert.Equal(t, uint64(1), before.Generation)
	assert.Equal(t, 3, before.Rules)

	loader.fail = true
	assert.NotNil(t, engine.Reload())

	after := engine.Status()
	assert.Equal(t, before.RuleSetId, after.RuleSetId)
	assert.Equal(t, uint64(1), after.Failures)
	assert.Equal(t, "rule files are broken", after.LastFailure)

	loader.fail = false
	assert.Nil(t, engine.Reload())
	after = engine.Status()
	assert.NotEqual(t, before.RuleSetId, after.RuleSetId)
	assert.Equal(t, uint64(2), after.Generation)
	assert.Equal(t, uint64(1), after.Reloads)
	assert.Equal(t, "", after.LastFailure)
}

func TestReloadDuringEvaluation(t *testing.T) {
	loader := newTestLoader(t)
	baseline := options.Live()

	engine, err := New(loader.registry, loader.load)
	require.Nil(t, err)
	// icmp_seq:5, icmp_seq:<5 and itype:8.
	assert.Equal(t, baseline+3, options.Live())

	pinned := engine.Acquire()
	loader.text = `alert icmp any any -> any any (icmp_id:9; sid:7;)`
	require.Nil(t, engine.Reload())

	// The pinned generation is still intact.
	assert.Equal(t, baseline+4, options.Live())
	w := ips.NewWorkerContext(loader.registry.Len(), false)
	p := &packet.Packet{}
	decoder, _ := packet.NewDecoder(layers.LinkTypeEthernet)
	frame := echoFrame(t, 5)
	require.Nil(t, decoder.Decode(frame.Data, frame.CaptureInfo, p))
	assert.Equal(t, 2, pinned.RuleSet().Detect(w, p, func(rules.Match) {}))

	pinned.Release()
	assert.Equal(t, baseline+1, options.Live())

	current := engine.Acquire()
	assert.Equal(t, 1, current.RuleSet().Detect(w, p, func(rules.Match) {}))
	current.Release()

	engine.Close()
	engine.Close()
	assert.Equal(t, baseline, options.Live())
	assert.Nil(t, engine.Acquire())
	assert.NotNil(t, engine.Reload())
}

func detectSids(t *testing.T, e *Engine, seq uint16) []uint32 {
	w := ips.NewWorkerContext(e.Registry().Len(), false)
	p := &packet.Packet{}
	decoder, err := packet.NewDecoder(layers.LinkTypeEthernet)
	require.Nil(t, err)
	frame := echoFrame(t, seq)
	require.Nil(t, decoder.Decode(frame.Data, frame.CaptureInfo, p))

	g := e.Acquire()
	require.NotNil(t, g)
	defer g.Release()
	sids := []uint32{}
	g.RuleSet().Detect(w, p, func(m rules.Match) {
		sids = append(sids, m.Rule.Sid)
	})
	return sids
}

func TestReloadReplacesRuleStates(t *testing.T) {
	loader := newTestLoader(t)
	engine, err := New(loader.registry, loader.load)
	require.Nil(t, err)
	defer engine.Close()

	assert.Equal(t, []uint32{1, 3}, detectSids(t, engine, 5))

	states := rules.NewRuleStateTable()
	state, err := rules.ParseState(1, 1, "disabled")
	require.Nil(t, err)
	require.Nil(t, states.Add(state))
	loader.lock.Lock()
	loader.options.States = states
	loader.lock.Unlock()

	require.Nil(t, engine.Reload())
	assert.Equal(t, []uint32{3}, detectSids(t, engine, 5))

	// A table without the entry enables the rule again.
	loader.lock.Lock()
	loader.options.States = rules.NewRuleStateTable()
	loader.lock.Unlock()

	require.Nil(t, engine.Reload())
	assert.Equal(t, []uint32{1, 3}, detectSids(t, engine, 5))
}

func TestConcurrentAcquireAndReload(t *testing.T) {
	loader := newTestLoader(t)
	baseline := options.Live()
	engine, err := New(loader.registry, loader.load)
	require.Nil(t, err)

	frame := echoFrame(t, 5)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := ips.NewWorkerContext(loader.registry.Len(), false)
			decoder, _ := packet.NewDecoder(layers.LinkTypeEthernet)
			p := &packet.Packet{}
			for j := 0; j < 200; j++ {
				decoder.Decode(frame.Data, frame.CaptureInfo, p)
				g := engine.Acquire()
				assert.Equal(t, 2, g.RuleSet().Detect(w, p, func(rules.Match) {}))
				g.Release()
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.Nil(t, engine.Reload())
	}
	wg.Wait()

	engine.Close()
	assert.Equal(t, baseline, options.Live())
}

func TestRoute(t *testing.T) {
	alerts := output.OutputSet{output.NewMemorySink()}
	logs := output.OutputSet{output.NewMemorySink()}
	node := &rules.RuleListNode{Head: &rules.ListHead{AlertList: alerts, LogList: logs}}

	assert.Equal(t, alerts, Route(rules.Match{Action: rules.ActionAlert, Node: node}))
	assert.Equal(t, alerts, Route(rules.Match{Action: rules.ActionDrop, Node: node}))
	assert.Equal(t, logs, Route(rules.Match{Action: rules.ActionLog, Node: node}))
	assert.Equal(t, logs, Route(rules.Match{Action: rules.ActionPass, Node: node}))
	assert.Nil(t, Route(rules.Match{Action: rules.ActionAlert}))
}

func TestPoolRun(t *testing.T) {
	loader := newTestLoader(t)
	alerts := output.NewMemorySink()
	logs := output.NewMemorySink()
	loader.options.DefaultRoute = rules.Route{
		Alert: output.OutputSet{alerts},
		Log:   output.OutputSet{logs},
	}

	engine, err := New(loader.registry, loader.load)
	require.Nil(t, err)
	defer engine.Close()

	profiler := ips.NewProfiler(loader.registry)
	alerter := NewAlerter([]output.Sink{alerts, logs})
	alerter.AddCustomField("host", "sensor1")
	alerter.AddFilter(&eve.TagsFilter{Tags: []string{"evedetect"}})

	pool := NewPool(engine, profiler, alerter, PoolConfig{Workers: 3, MergeInterval: 2})
	assert.Equal(t, 3, pool.Workers())

	input := []packet.Frame{}
	for seq := uint16(0); seq < 10; seq++ {
		input = append(input, echoFrame(t, seq))
	}
	input = append(input, packet.Frame{Data: []byte{1, 2, 3}, LinkType: layers.LinkTypeEthernet})

	frames := make(chan packet.Frame)
	go func() {
		for _, frame := range input {
			frames <- frame
		}
		close(frames)
	}()
	require.Nil(t, pool.Run(context.Background(), frames))

	stats := pool.Stats()
	assert.Equal(t, uint64(10), stats.Packets)
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	// Five below 5, one equal to 5, ten echo requests logged.
	assert.Equal(t, uint64(16), stats.Matches)

	assert.Equal(t, 6, len(alerts.Events()))
	assert.Equal(t, 10, len(logs.Events()))
	assert.Equal(t, uint64(16), alerter.Count())

	var seq5 eve.EveEvent
	for _, event := range alerts.Events() {
		if sid, _ := event.GetAlertSignatureId(); sid == 1 {
			seq5 = event
		}
	}
	require.NotNil(t, seq5)
	assert.Equal(t, "sensor1", seq5["host"])
	assert.Equal(t, "echo seq 5", seq5.GetAlert().GetString("signature"))
	assert.Equal(t, "misc-activity", seq5.GetAlert().GetString("category"))
	assert.Equal(t, "allowed", seq5.GetAlert().GetString("action"))
	assert.Equal(t, "10.1.1.1", seq5.SrcIp())

	// Every worker merged at exit.
	assert.Equal(t, uint64(20), profiler.Get("icmp_seq").Checks)
	assert.Equal(t, uint64(6), profiler.Get("icmp_seq").Matches)
	assert.Equal(t, uint64(10), profiler.Get("itype").Checks)
}

func TestPoolRunCancel(t *testing.T) {
	loader := newTestLoader(t)
	engine, err := New(loader.registry, loader.load)
	require.Nil(t, err)
	defer engine.Close()

	pool := NewPool(engine, ips.NewProfiler(loader.registry), nil, PoolConfig{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan packet.Frame)

	done := make(chan error)
	go func() {
		done <- pool.Run(ctx, frames)
	}()
	frames <- echoFrame(t, 1)
	cancel()

	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestFeedPcap(t *testing.T) {
	frame := echoFrame(t, 1)
	var buf bytes.Buffer
	require.Nil(t, packet.WritePcap(&buf, []packet.Frame{frame, frame}))
	reader, err := packet.NewPcapReader(&buf)
	require.Nil(t, err)

	out := make(chan packet.Frame, 4)
	require.Nil(t, Feed(context.Background(), reader, out))
	close(out)

	count := 0
	for f := range out {
		assert.Equal(t, layers.LinkTypeEthernet, f.LinkType)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestWatchDirs(t *testing.T) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	dirs := watchDirs([]string{
		dir,
		filepath.Join(dir, "local.rules"),
		"/etc/evedetect/rules/*.rules",
		"relative.rules",
	})
	assert.Equal(t, []string{dir, "/etc/evedetect/rules", "."}, dirs)
}

func TestWatchReloads(t *testing.T) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, "local.rules")
	require.Nil(t, ioutil.WriteFile(filename, []byte(testRules), 0644))

	registry := ips.NewRegistry()
	require.Nil(t, options.Register(registry))
	loader := func() (*rules.RuleSet, error) {
		compiler := rules.NewCompiler(registry, rules.CompilerOptions{})
		if err := compiler.AddPaths([]string{dir}); err != nil {
			return nil, err
		}
		return compiler.Finish()
	}
	engine, err := New(registry, loader)
	require.Nil(t, err)
	defer engine.Close()
	assert.Equal(t, 3, engine.Status().Rules)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- engine.Watch(ctx, []string{dir}, 50*time.Millisecond)
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.Nil(t, ioutil.WriteFile(filename,
		[]byte(`alert icmp any any -> any any (icmp_seq:1; sid:1;)`+"\n"), 0644))
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	deadline := time.Now().Add(5 * time.Second)
	for engine.Status().Reloads == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	status := engine.Status()
	assert.Equal(t, uint64(1), status.Reloads)
	assert.Equal(t, 1, status.Rules)

	cancel()
	assert.Nil(t, <-done)
}
