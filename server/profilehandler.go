package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/jasonish/evedetect/engine"
	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/perf"
)

type ProfileResponse struct {
	Merges  uint64            `json:"merges"`
	Options []ips.KindStats   `json:"options"`
	Packets *engine.PoolStats `json:"packets,omitempty"`
}

func ProfileHandler(appContext AppContext, r *http.Request) interface{} {
	response := ProfileResponse{
		Merges:  appContext.Profiler.Merges(),
		Options: appContext.Profiler.Snapshot(),
	}
	if appContext.Pool != nil {
		stats := appContext.Pool.Stats()
		response.Packets = &stats
	}
	return response
}

func PprofHandler(appContext AppContext, r *http.Request) interface{} {
	var buf bytes.Buffer
	duration := time.Since(appContext.Started)
	err := perf.WritePprof(&buf, appContext.Profiler.Snapshot(), appContext.Started, duration)
	if err != nil {
		return HttpErrorResponse(http.StatusInternalServerError, err.Error())
	}
	return HttpBytesResponse("application/octet-stream", buf.Bytes(), map[string]string{
		"Content-Disposition": "attachment; filename=evedetect.pprof",
	})
}
