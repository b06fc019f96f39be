package server

import (
	"time"

	"github.com/jasonish/evedetect/engine"
	"github.com/jasonish/evedetect/ips"
)

type AppContext struct {
	Engine   *engine.Engine
	Profiler *ips.Profiler

	// Optional, for packet counters.
	Pool *engine.Pool

	// When profiling started, for the pprof export.
	Started time.Time
}
