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

package output

import (
	"sync"

	"github.com/jasonish/evedetect/eve"
)

// MemorySink keeps committed events in memory. It is safe for concurrent
// use.
type MemorySink struct {
	lock      sync.Mutex
	pending   []eve.EveEvent
	committed []eve.EveEvent
	commits   int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Submit(event eve.EveEvent) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pending = append(s.pending, event)
	return nil
}

func (s *MemorySink) Commit() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.committed = append(s.committed, s.pending...)
	s.pending = nil
	s.commits++
	return nil
}

// Events returns a copy of the committed events.
func (s *MemorySink) Events() []eve.EveEvent {
	s.lock.Lock()
	defer s.lock.Unlock()
	events := make([]eve.EveEvent, len(s.committed))
	copy(events, s.committed)
	return events
}

func (s *MemorySink) Commits() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.commits
}
