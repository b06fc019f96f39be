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

// OptionTable collapses structurally identical option instances. It is
// only used while a rule set is being compiled; afterwards it owns the
// surviving instances until Release.
type OptionTable struct {
	buckets map[uint32][]*Instance
	count   int

	// Duplicates that were discarded by Intern.
	collapsed int
}

func NewOptionTable() *OptionTable {
	return &OptionTable{
		buckets: make(map[uint32][]*Instance),
	}
}

// Intern returns the instance equal to inst if one is already in the
// table, destroying inst, otherwise it adds inst and returns it. The bool
// is true when an existing instance was returned.
func (t *OptionTable) Intern(inst *Instance) (*Instance, bool) {
	hash := inst.Hash()
	for _, existing := range t.buckets[hash] {
		if existing.kind == inst.kind && existing.Equals(inst.Option) {
			inst.destroy()
			t.collapsed++
			return existing, true
		}
	}
	t.buckets[hash] = append(t.buckets[hash], inst)
	t.count++
	return inst, false
}

// Len is the number of distinct instances.
func (t *OptionTable) Len() int {
	return t.count
}

// Collapsed is the number of duplicates Intern discarded.
func (t *OptionTable) Collapsed() int {
	return t.collapsed
}

// Release destroys every instance once and empties the table.
func (t *OptionTable) Release() {
	for _, bucket := range t.buckets {
		for _, inst := range bucket {
			inst.destroy()
		}
	}
	t.buckets = make(map[uint32][]*Instance)
	t.count = 0
}
