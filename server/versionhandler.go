package server

import (
	"net/http"
	"runtime"

	"github.com/jasonish/evedetect/core"
)

type VersionResponse struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
	Date     string `json:"date"`
	Runtime  string `json:"runtime"`
}

func VersionHandler(appContext AppContext, r *http.Request) interface{} {
	response := VersionResponse{
		core.BuildVersion,
		core.BuildRev,
		core.BuildDate,
		runtime.Version(),
	}
	return response
}
