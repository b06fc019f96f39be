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
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/jasonish/evedetect/eve"
	"github.com/pkg/errors"
)

var stdout io.Writer = os.Stdout

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

// EveWriter writes events as JSON lines. It is safe for concurrent use.
type EveWriter struct {
	lock   sync.Mutex
	out    io.WriteCloser
	writer *bufio.Writer
}

func NewEveWriter(out io.WriteCloser) *EveWriter {
	return &EveWriter{
		out:    out,
		writer: bufio.NewWriter(out),
	}
}

// OpenEveWriter appends to filename, creating it if needed.
func OpenEveWriter(filename string) (*EveWriter, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", filename)
	}
	return NewEveWriter(file), nil
}

func (w *EveWriter) Submit(event eve.EveEvent) error {
	buf, err := json.Marshal(event)
	if err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	if _, err := w.writer.Write(buf); err != nil {
		return err
	}
	return w.writer.WriteByte('\n')
}

func (w *EveWriter) Commit() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.writer.Flush()
}

func (w *EveWriter) Close() error {
	if err := w.Commit(); err != nil {
		w.out.Close()
		return err
	}
	return w.out.Close()
}
