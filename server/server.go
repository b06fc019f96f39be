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

package server

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jasonish/evedetect/log"
)

type Router struct {
	router *mux.Router
}

func NewRouter() *Router {
	return &Router{
		router: mux.NewRouter(),
	}
}

func (r *Router) Handle(path string, handler http.Handler) *mux.Route {
	return r.router.Handle(path, handler)
}

func (r *Router) GET(path string, handler http.Handler) {
	log.Debug("Adding GET route: %s", path)
	r.router.Handle(path, handler).Methods("GET")
}

func (r *Router) POST(path string, handler http.Handler) {
	log.Debug("Adding POST route: %s", path)
	r.router.Handle(path, handler).Methods("POST")
}

type ApiRouter struct {
	appContext AppContext
	router     *Router
}

func (r *ApiRouter) GET(path string, handler ApiHandlerFunc) {
	r.router.GET(path, ApiF(r.appContext, handler))
}

func (r *ApiRouter) POST(path string, handler ApiHandlerFunc) {
	r.router.POST(path, ApiF(r.appContext, handler))
}

type Server struct {
	appContext AppContext
	router     *Router

	// Log each request in the Apache combined format.
	RequestLogging bool
}

func NewServer(appContext AppContext) *Server {

	router := NewRouter()

	server := &Server{
		appContext: appContext,
		router:     router,
	}

	server.RegisterApiHandlers()

	return server
}

// Handler returns the root handler, wrapped for request logging if
// enabled.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router.router
	if s.RequestLogging {
		handler = handlers.CombinedLoggingHandler(os.Stderr, handler)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(log.IsDebug()))(handler)
}

func (s *Server) Start(addr string) error {
	log.Info("Listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) RegisterApiHandlers() {

	apiRouter := ApiRouter{s.appContext, s.router}

	apiRouter.GET("/api/version", VersionHandler)
	apiRouter.GET("/api/rules", RulesHandler)
	apiRouter.GET("/api/profile", ProfileHandler)
	apiRouter.GET("/api/profile/pprof", PprofHandler)

	apiRouter.POST("/api/reload", ReloadHandler)
	apiRouter.POST("/api/eve2pcap", Eve2PcapHandler)
}
