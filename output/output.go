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

// Package output contains the sinks alert events are written to.
package output

import (
	"io"
	"strings"

	"github.com/jasonish/evedetect/eve"
	"github.com/pkg/errors"
)

// Sink is an event sink. Submit may buffer; Commit flushes what has been
// submitted. Sinks are not safe for concurrent use unless noted.
type Sink interface {
	Submit(event eve.EveEvent) error
	Commit() error
}

// OutputSet is the list of sinks a rule list routes events to. A nil or
// empty set discards events.
type OutputSet []Sink

// Submit passes the event to every sink, returning the first error.
func (s OutputSet) Submit(event eve.EveEvent) error {
	var first error
	for _, sink := range s {
		if err := sink.Submit(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s OutputSet) Commit() error {
	var first error
	for _, sink := range s {
		if err := sink.Commit(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s OutputSet) Empty() bool {
	return len(s) == 0
}

// Config is one entry of the "outputs" configuration list.
type Config struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Type     string `yaml:"type" mapstructure:"type"`
	Filename string `yaml:"filename" mapstructure:"filename"`
	Dsn      string `yaml:"dsn" mapstructure:"dsn"`
}

// Open creates the sink described by config.
func Open(config Config) (Sink, error) {
	switch strings.ToLower(config.Type) {
	case "eve", "eve-log", "json":
		if config.Filename == "" || config.Filename == "-" {
			return NewEveWriter(nopCloser{stdout}), nil
		}
		return OpenEveWriter(config.Filename)
	case "sqlite":
		if config.Filename == "" {
			return nil, errors.Errorf("output %s: sqlite requires a filename", config.Name)
		}
		return NewSqliteSink(config.Filename)
	case "postgres", "postgresql":
		return NewPostgresSink(config.Dsn)
	case "memory":
		return NewMemorySink(), nil
	}
	return nil, errors.Errorf("output %s: unknown type %q", config.Name, config.Type)
}

// Close closes a sink that holds resources.
func Close(sink Sink) error {
	if closer, ok := sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
