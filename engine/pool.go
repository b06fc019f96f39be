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
	"context"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/packet"
	"github.com/jasonish/evedetect/rules"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMergeInterval = 1000
	DefaultQueueLength   = 1000
)

type PoolConfig struct {
	// Number of workers, defaults to the number of CPUs.
	Workers int

	// Packets a worker evaluates between merges of its profiling
	// accumulators.
	MergeInterval int

	QueueLength int

	// Measure time spent in each option kind.
	Timing bool
}

type PoolStats struct {
	Packets      uint64 `json:"packets"`
	DecodeErrors uint64 `json:"decode_errors"`
	Matches      uint64 `json:"matches"`
}

// Pool evaluates packets against the engine's live rule set on a fixed
// number of workers. Packets of the same flow always go to the same
// worker.
type Pool struct {
	engine   *Engine
	profiler *ips.Profiler
	alerter  *Alerter
	config   PoolConfig

	packets      uint64
	decodeErrors uint64
	matches      uint64
}

func NewPool(engine *Engine, profiler *ips.Profiler, alerter *Alerter, config PoolConfig) *Pool {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MergeInterval <= 0 {
		config.MergeInterval = DefaultMergeInterval
	}
	if config.QueueLength <= 0 {
		config.QueueLength = DefaultQueueLength
	}
	return &Pool{
		engine:   engine,
		profiler: profiler,
		alerter:  alerter,
		config:   config,
	}
}

func (p *Pool) Workers() int {
	return p.config.Workers
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Packets:      atomic.LoadUint64(&p.packets),
		DecodeErrors: atomic.LoadUint64(&p.decodeErrors),
		Matches:      atomic.LoadUint64(&p.matches),
	}
}

// flowHash is symmetric, so both directions of a flow hash the same.
func flowHash(frame packet.Frame) uint64 {
	pkt := gopacket.NewPacket(frame.Data, frame.LinkType, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	var hash uint64
	if network := pkt.NetworkLayer(); network != nil {
		hash = network.NetworkFlow().FastHash()
	}
	if transport := pkt.TransportLayer(); transport != nil {
		hash ^= transport.TransportFlow().FastHash()
	}
	return hash
}

// Run evaluates every frame read from frames until frames is closed or ctx
// is done. The alerter is flushed before returning.
func (p *Pool) Run(ctx context.Context, frames <-chan packet.Frame) error {
	group, ctx := errgroup.WithContext(ctx)

	queues := make([]chan packet.Frame, p.config.Workers)
	for i := range queues {
		queue := make(chan packet.Frame, p.config.QueueLength)
		queues[i] = queue
		id := i
		group.Go(func() error {
			return p.worker(id, queue)
		})
	}

	group.Go(func() error {
		defer func() {
			for _, queue := range queues {
				close(queue)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case frame, ok := <-frames:
				if !ok {
					return nil
				}
				queue := queues[flowHash(frame)%uint64(len(queues))]
				select {
				case queue <- frame:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	err := group.Wait()
	if p.alerter != nil {
		p.alerter.Flush()
	}
	return err
}

func (p *Pool) worker(id int, queue <-chan packet.Frame) error {
	log.Debug("Worker %d started", id)

	w := ips.NewWorkerContext(p.engine.Registry().Len(), p.config.Timing)
	decoders := map[layers.LinkType]*packet.Decoder{}
	pkt := &packet.Packet{}
	count := 0

	defer func() {
		p.profiler.Merge(w)
		log.Debug("Worker %d stopped after %d packets", id, count)
	}()

	emit := func(m rules.Match) {
		atomic.AddUint64(&p.matches, 1)
		if p.alerter != nil {
			p.alerter.Emit(pkt, m)
		}
	}

	for frame := range queue {
		decoder, ok := decoders[frame.LinkType]
		if !ok {
			var err error
			decoder, err = packet.NewDecoder(frame.LinkType)
			if err != nil {
				return err
			}
			decoders[frame.LinkType] = decoder
		}

		if err := decoder.Decode(frame.Data, frame.CaptureInfo, pkt); err != nil {
			atomic.AddUint64(&p.decodeErrors, 1)
			if pkt.ProtoBits == packet.ProtoBitOther {
				continue
			}
		}

		g := p.engine.Acquire()
		if g == nil {
			return errors.New("engine closed while workers running")
		}
		g.RuleSet().Detect(w, pkt, emit)
		g.Release()

		atomic.AddUint64(&p.packets, 1)
		count++
		if count%p.config.MergeInterval == 0 {
			p.profiler.Merge(w)
		}
	}

	return nil
}

// Frames is a source of packet frames, such as a packet.PcapReader.
type Frames interface {
	Next() (packet.Frame, error)
}

// Feed sends every frame from source to out. It returns nil at the end of
// the source.
func Feed(ctx context.Context, source Frames, out chan<- packet.Frame) error {
	for {
		frame, err := source.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
