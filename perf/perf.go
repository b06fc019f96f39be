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

// Package perf renders the option profiling totals, as a text table for
// people and as a pprof profile for tooling.
package perf

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/pprof/profile"
	"github.com/jasonish/evedetect/ips"
	"github.com/pkg/errors"
)

// Sample types of the exported profile, in value order.
var sampleTypes = []*profile.ValueType{
	{Type: "checks", Unit: "count"},
	{Type: "matches", Unit: "count"},
	{Type: "elapsed", Unit: "nanoseconds"},
}

func percent(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}

func average(elapsed time.Duration, checks uint64) time.Duration {
	if checks == 0 {
		return 0
	}
	return elapsed / time.Duration(checks)
}

// WriteText writes stats as an aligned table, in the order given.
func WriteText(w io.Writer, stats []ips.KindStats) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "option\tchecks\tmatches\tmatch%%\telapsed\tavg/check\t\n")

	var total ips.ProfileStats
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%v\t%v\t\n",
			s.Name, s.Checks, s.Matches, percent(s.Matches, s.Checks),
			s.Elapsed, average(s.Elapsed, s.Checks))
		total.Checks += s.Checks
		total.Matches += s.Matches
		total.Elapsed += s.Elapsed
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%.2f\t%v\t%v\t\n",
		total.Checks, total.Matches, percent(total.Matches, total.Checks),
		total.Elapsed, average(total.Elapsed, total.Checks))

	return tw.Flush()
}

// ToPprof converts stats to a profile with one sample per option kind.
// Each kind gets a synthetic function so the usual pprof views (top,
// flame graphs) group by option name.
func ToPprof(stats []ips.KindStats, start time.Time, duration time.Duration) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType:    sampleTypes,
		TimeNanos:     start.UnixNano(),
		DurationNanos: duration.Nanoseconds(),
		PeriodType:    &profile.ValueType{Type: "packets", Unit: "count"},
		Period:        1,
	}

	for i, s := range stats {
		id := uint64(i + 1)
		function := &profile.Function{
			ID:         id,
			Name:       "ips." + s.Name,
			SystemName: s.Name,
		}
		location := &profile.Location{
			ID:   id,
			Line: []profile.Line{{Function: function}},
		}
		p.Function = append(p.Function, function)
		p.Location = append(p.Location, location)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{location},
			Value:    []int64{int64(s.Checks), int64(s.Matches), s.Elapsed.Nanoseconds()},
			Label:    map[string][]string{"option": {s.Name}},
		})
	}

	if err := p.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	return p, nil
}

// WritePprof writes stats as a gzipped pprof profile.
func WritePprof(w io.Writer, stats []ips.KindStats, start time.Time, duration time.Duration) error {
	p, err := ToPprof(stats, start, duration)
	if err != nil {
		return err
	}
	return p.Write(w)
}
