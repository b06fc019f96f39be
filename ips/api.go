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
	"github.com/jasonish/evedetect/packet"
)

// Api describes one option kind to the engine. It is plain data: the
// engine discovers, builds and destroys options through it without
// knowing the concrete types.
type Api struct {
	Name string
	Help string

	// Packets without any of these protocols never match the option, so
	// evaluation is skipped for them.
	Protos packet.ProtoBits

	ModCtor func() Module
	// ModDtor and Dtor are optional.
	ModDtor func(Module)

	Ctor func(Module) (Option, error)
	Dtor func(Option)
}

// Kind is an Api as registered in a particular Registry. Its Id is a
// dense index used for per-kind profiling slots.
type Kind struct {
	Api *Api
	Id  int
}

func (k *Kind) Name() string {
	return k.Api.Name
}

// Build runs the whole construction sequence for one occurrence of the
// option in a rule: module ctor, Bind, option ctor, module dtor.
func (k *Kind) Build(args string) (*Instance, error) {
	module := k.Api.ModCtor()
	if k.Api.ModDtor != nil {
		defer k.Api.ModDtor(module)
	}

	if err := Bind(module, args); err != nil {
		return nil, err
	}

	option, err := k.Api.Ctor(module)
	if err != nil {
		if typedError(err) {
			return nil, err
		}
		return nil, &ParseError{Option: k.Api.Name, Value: args, Err: err}
	}

	return &Instance{Option: option, kind: k}, nil
}

// Instance is a constructed option bound to its kind. After dedup one
// Instance is shared by every rule using the same configuration.
type Instance struct {
	Option
	kind *Kind
}

func (i *Instance) Kind() *Kind {
	return i.kind
}

func (i *Instance) Protos() packet.ProtoBits {
	return i.kind.Api.Protos
}

func (i *Instance) destroy() {
	if i.kind.Api.Dtor != nil {
		i.kind.Api.Dtor(i.Option)
	}
}
