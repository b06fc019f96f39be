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
	"time"

	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/output"
	"github.com/jasonish/evedetect/packet"
	"github.com/jasonish/evedetect/rules"
)

const BATCH_SIZE = 1000

// Alerter turns rule matches into EVE events, applies the filters and
// submits them to the outputs of the rule list the match was routed to.
// It is shared by all workers.
type Alerter struct {
	filters      []eve.EveFilter
	customFields map[string]interface{}

	// Every sink that may receive events, for committing.
	sinks []output.Sink

	lock    sync.Mutex
	pending uint64

	// Total number of events submitted.
	count uint64

	// Internal metrics counting.
	lastStatCount uint64
	lastStatTime  time.Time
}

func NewAlerter(sinks []output.Sink) *Alerter {
	return &Alerter{
		sinks:        sinks,
		lastStatTime: time.Now(),
	}
}

func (a *Alerter) AddFilter(filter eve.EveFilter) {
	a.filters = append(a.filters, filter)
}

func (a *Alerter) AddCustomField(field string, value interface{}) {
	if a.customFields == nil {
		a.customFields = make(map[string]interface{})
	}
	a.customFields[field] = value
}

// Event builds the EVE event for a match.
func Event(p *packet.Packet, match rules.Match) eve.EveEvent {
	rule := match.Rule
	return eve.NewAlertEvent(p, eve.Alert{
		Action:    match.Action.String(),
		Blocked:   match.Action.Blocks(),
		Gid:       rule.Gid,
		Sid:       rule.Sid,
		Rev:       rule.Rev,
		Signature: rule.Msg,
		Category:  rule.Classtype,
		Severity:  rule.Priority,
	})
}

// Route returns the outputs a match goes to: the alert list of its node
// for alerting actions, the log list otherwise.
func Route(match rules.Match) output.OutputSet {
	if match.Node == nil {
		return nil
	}
	if match.Action.Alerts() {
		return match.Node.Head.AlertList
	}
	return match.Node.Head.LogList
}

// Emit submits the event for a match. Matches routed nowhere are dropped
// without building an event.
func (a *Alerter) Emit(p *packet.Packet, match rules.Match) {
	outputs := Route(match)
	if outputs.Empty() {
		return
	}

	event := Event(p, match)

	a.lock.Lock()
	defer a.lock.Unlock()

	for _, filter := range a.filters {
		filter.Filter(event)
	}
	a.addCustomFields(event)

	if err := outputs.Submit(event); err != nil {
		log.Error("Failed to submit event: %v", err)
		return
	}
	a.pending++

	if a.pending%BATCH_SIZE == 0 {
		a.commit()
	}
}

// Flush commits everything submitted so far.
func (a *Alerter) Flush() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.commit()
}

// Count is the number of events committed.
func (a *Alerter) Count() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.count
}

// commit must be called with the lock held.
func (a *Alerter) commit() {
	if a.pending == 0 {
		return
	}
	start := time.Now()
	for _, sink := range a.sinks {
		if err := sink.Commit(); err != nil {
			log.Error("Commit failed: %v", err)
		}
	}
	log.Debug("Committed %d events in %v", a.pending, time.Now().Sub(start))
	a.count += a.pending
	a.pending = 0

	// Print stats.
	now := time.Now()
	if now.Sub(a.lastStatTime).Seconds() > 60 {
		log.Info("Total events: %d; last minute: %d",
			a.count, a.count-a.lastStatCount)
		a.lastStatCount = a.count
		a.lastStatTime = now
	}
}

func (a *Alerter) addCustomFields(event eve.EveEvent) {
	for key := range a.customFields {
		event[key] = a.customFields[key]
	}
}
