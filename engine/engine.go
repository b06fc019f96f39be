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
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/rules"
	"github.com/pkg/errors"
)

// Loader compiles a fresh rule set, typically from the current
// configuration and rule files.
type Loader func() (*rules.RuleSet, error)

// Generation is one published rule set. Workers pin the generation they
// evaluate a packet with; it is closed when it has been replaced and the
// last pin is released.
type Generation struct {
	set      *rules.RuleSet
	loaded   time.Time
	sequence uint64

	// One reference belongs to the engine while the generation is
	// current.
	refs int64
}

func (g *Generation) RuleSet() *rules.RuleSet {
	return g.set
}

func (g *Generation) Sequence() uint64 {
	return g.sequence
}

func (g *Generation) Loaded() time.Time {
	return g.loaded
}

// Release drops a reference taken with Engine.Acquire.
func (g *Generation) Release() {
	refs := atomic.AddInt64(&g.refs, -1)
	if refs == 0 {
		log.Debug("Releasing rule set %s (generation %d)", g.set.ID(), g.sequence)
		g.set.Close()
	} else if refs < 0 {
		panic("engine: generation released too many times")
	}
}

// tryAcquire takes a reference unless the generation is already dead.
func (g *Generation) tryAcquire() bool {
	for {
		refs := atomic.LoadInt64(&g.refs)
		if refs <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&g.refs, refs, refs+1) {
			return true
		}
	}
}

// Status is a point in time view of the engine for reporting.
type Status struct {
	RuleSetId   string    `json:"rule_set_id"`
	Generation  uint64    `json:"generation"`
	Loaded      time.Time `json:"loaded"`
	Rules       int       `json:"rules"`
	Options     int       `json:"options"`
	Shared      int       `json:"shared_options"`
	Reloads     uint64    `json:"reloads"`
	Failures    uint64    `json:"reload_failures"`
	LastFailure string    `json:"last_failure,omitempty"`
}

// Engine publishes the live rule set. Readers never block: Acquire is a
// pointer load and a reference count increment.
type Engine struct {
	registry *ips.Registry
	loader   Loader

	current atomic.Value

	// Serializes reloads.
	lock        sync.Mutex
	sequence    uint64
	reloads     uint64
	failures    uint64
	lastFailure string

	closed int32
}

// New compiles the initial rule set. Unlike a reload, a failure here is
// returned to the caller as there is nothing to fall back to.
func New(registry *ips.Registry, loader Loader) (*Engine, error) {
	e := &Engine{
		registry: registry,
		loader:   loader,
	}
	set, err := loader()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load rules")
	}
	e.publish(set)
	return e, nil
}

func (e *Engine) Registry() *ips.Registry {
	return e.registry
}

// publish makes set current and drops the engine's reference to the
// previous generation. Must be called with lock held, or before the
// engine is shared.
func (e *Engine) publish(set *rules.RuleSet) {
	e.sequence++
	next := &Generation{
		set:      set,
		loaded:   time.Now(),
		sequence: e.sequence,
		refs:     1,
	}
	previous, _ := e.current.Load().(*Generation)
	e.current.Store(next)
	if previous != nil {
		previous.Release()
	}
}

// Acquire pins the current generation. The caller must Release it. After
// Close it returns nil.
func (e *Engine) Acquire() *Generation {
	for {
		g := e.current.Load().(*Generation)
		if g.tryAcquire() {
			return g
		}
		if atomic.LoadInt32(&e.closed) == 1 {
			return nil
		}
		// Replaced and drained between the load and the increment; the
		// new generation is already published.
	}
}

// Reload compiles a new rule set and swaps it in. On failure the live set
// is kept and the error returned.
func (e *Engine) Reload() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if atomic.LoadInt32(&e.closed) == 1 {
		return errors.New("engine is closed")
	}

	start := time.Now()
	set, err := e.loader()
	if err != nil {
		e.failures++
		e.lastFailure = err.Error()
		log.Error("Rule reload failed, keeping current rules: %v", err)
		return err
	}
	e.publish(set)
	e.reloads++
	e.lastFailure = ""
	log.InfoWithFields(log.Fields{
		"rule_set_id": set.ID(),
		"rules":       set.RuleCount(),
		"generation":  e.sequence,
	}, "Reloaded rules in %v", time.Since(start))
	return nil
}

func (e *Engine) Status() Status {
	e.lock.Lock()
	defer e.lock.Unlock()

	status := Status{
		Reloads:     e.reloads,
		Failures:    e.failures,
		LastFailure: e.lastFailure,
	}

	g := e.Acquire()
	if g == nil {
		return status
	}
	defer g.Release()

	status.RuleSetId = g.set.ID()
	status.Generation = g.sequence
	status.Loaded = g.loaded
	status.Rules = g.set.RuleCount()
	status.Options = g.set.OptionCount()
	status.Shared = g.set.SharedOptions()
	return status
}

// Close drops the engine's reference to the live generation. Workers still
// holding it keep it alive until they release it.
func (e *Engine) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return
	}
	e.current.Load().(*Generation).Release()
}
