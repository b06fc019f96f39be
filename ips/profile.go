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
	"sort"
	"sync"
	"time"

	"github.com/jasonish/evedetect/packet"
)

// ProfileStats accumulates evaluations of one option kind.
type ProfileStats struct {
	Checks  uint64        `json:"checks"`
	Matches uint64        `json:"matches"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

func (s *ProfileStats) add(other ProfileStats) {
	s.Checks += other.Checks
	s.Matches += other.Matches
	s.Elapsed += other.Elapsed
}

// WorkerContext holds the per-worker state used while evaluating rules.
// It is owned by a single goroutine; its accumulators are plain fields
// and are folded into a Profiler with Merge from that same goroutine.
type WorkerContext struct {
	// Measure elapsed time around each evaluation. Counts are kept
	// either way.
	Timing bool

	stats  []ProfileStats
	cursor Cursor
}

func NewWorkerContext(kinds int, timing bool) *WorkerContext {
	return &WorkerContext{
		Timing: timing,
		stats:  make([]ProfileStats, kinds),
	}
}

// Cursor returns the cursor the worker reuses for rule evaluation.
func (w *WorkerContext) Cursor() *Cursor {
	return &w.cursor
}

// Eval evaluates one option instance, applying the protocol pre-filter of
// its kind and recording the evaluation in the worker's accumulator.
func (w *WorkerContext) Eval(inst *Instance, cursor *Cursor, p *packet.Packet) Result {
	id := inst.kind.Id
	if id >= len(w.stats) {
		w.grow(id + 1)
	}
	stats := &w.stats[id]
	stats.Checks++

	if !p.ProtoBits.Intersects(inst.Protos()) {
		return NoMatch
	}

	var start time.Time
	if w.Timing {
		start = time.Now()
	}

	result := inst.Eval(cursor, p)

	if w.Timing {
		stats.Elapsed += time.Since(start)
	}
	if result == Match {
		stats.Matches++
	}

	return result
}

func (w *WorkerContext) grow(n int) {
	stats := make([]ProfileStats, n)
	copy(stats, w.stats)
	w.stats = stats
}

// Stats returns the unmerged accumulator for a kind.
func (w *WorkerContext) Stats(kind *Kind) ProfileStats {
	if kind.Id >= len(w.stats) {
		return ProfileStats{}
	}
	return w.stats[kind.Id]
}

// KindStats is a merged accumulator labeled with its option name.
type KindStats struct {
	Name string `json:"name"`
	ProfileStats
}

// Profiler is the shared reporting side of option profiling. Workers
// Merge into it periodically; reporters take Snapshots. Its lock is never
// taken on the evaluation path.
type Profiler struct {
	registry *Registry

	mu     sync.Mutex
	totals []ProfileStats
	merges uint64
}

func NewProfiler(registry *Registry) *Profiler {
	return &Profiler{
		registry: registry,
	}
}

// Merge adds the worker's accumulators to the totals and zeroes them.
// It must be called from the goroutine that owns w.
func (p *Profiler) Merge(w *WorkerContext) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.totals) < len(w.stats) {
		totals := make([]ProfileStats, len(w.stats))
		copy(totals, p.totals)
		p.totals = totals
	}
	for i := range w.stats {
		p.totals[i].add(w.stats[i])
		w.stats[i] = ProfileStats{}
	}
	p.merges++
}

// Snapshot returns the totals of every kind that has been evaluated,
// most expensive first.
func (p *Profiler) Snapshot() []KindStats {
	kinds := p.registry.Kinds()

	p.mu.Lock()
	defer p.mu.Unlock()

	result := []KindStats{}
	for _, kind := range kinds {
		if kind.Id >= len(p.totals) || p.totals[kind.Id].Checks == 0 {
			continue
		}
		result = append(result, KindStats{
			Name:         kind.Name(),
			ProfileStats: p.totals[kind.Id],
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Elapsed != result[j].Elapsed {
			return result[i].Elapsed > result[j].Elapsed
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Get returns the totals for one option name.
func (p *Profiler) Get(name string) ProfileStats {
	kind, ok := p.registry.Get(name)
	if !ok {
		return ProfileStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind.Id >= len(p.totals) {
		return ProfileStats{}
	}
	return p.totals[kind.Id]
}

// Merges is the number of Merge calls, for status reporting.
func (p *Profiler) Merges() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.merges
}

func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals = nil
}
