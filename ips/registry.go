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

	"github.com/pkg/errors"
	"golang.org/x/sync/syncmap"
)

// Registry maps option keywords to their registered Kind. Registration
// order does not matter; lookups are by name and safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	kinds []*Kind
	names syncmap.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an option kind.
func (r *Registry) Register(api *Api) error {
	if api == nil || api.Name == "" {
		return errors.New("option api has no name")
	}
	if api.ModCtor == nil || api.Ctor == nil {
		return errors.Errorf("option %s: missing constructor", api.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names.Load(api.Name); exists {
		return errors.Errorf("option %s is already registered", api.Name)
	}

	kind := &Kind{Api: api, Id: len(r.kinds)}
	r.kinds = append(r.kinds, kind)
	r.names.Store(api.Name, kind)

	return nil
}

// MustRegister is Register for static tables where failure is a
// programming error.
func (r *Registry) MustRegister(apis ...*Api) {
	for _, api := range apis {
		if err := r.Register(api); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (*Kind, bool) {
	val, ok := r.names.Load(name)
	if !ok {
		return nil, false
	}
	return val.(*Kind), true
}

// Names returns the registered keywords, sorted.
func (r *Registry) Names() []string {
	names := []string{}
	r.names.Range(func(key, value interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Len is the number of registered kinds, and one more than the largest
// Kind Id.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}

// Kinds returns the registered kinds ordered by Id.
func (r *Registry) Kinds() []*Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]*Kind, len(r.kinds))
	copy(kinds, r.kinds)
	return kinds
}
