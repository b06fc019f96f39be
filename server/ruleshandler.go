package server

import (
	"net/http"

	"github.com/jasonish/evedetect/engine"
)

type RuleListResponse struct {
	Name       string `json:"name"`
	EvalIndex  int    `json:"eval_index"`
	Rules      int    `json:"rules"`
	AlertSinks int    `json:"alert_outputs"`
	LogSinks   int    `json:"log_outputs"`
}

type RulesResponse struct {
	engine.Status
	States int                `json:"rule_states"`
	Lists  []RuleListResponse `json:"lists"`
}

// RulesHandler describes the live rule set, its lists in evaluation
// order.
func RulesHandler(appContext AppContext, r *http.Request) interface{} {
	g := appContext.Engine.Acquire()
	if g == nil {
		return HttpErrorResponse(http.StatusServiceUnavailable, "engine is shut down")
	}
	defer g.Release()

	set := g.RuleSet()
	response := RulesResponse{
		Status: appContext.Engine.Status(),
		States: set.States().Len(),
		Lists:  []RuleListResponse{},
	}
	for _, node := range set.Lists().Nodes() {
		response.Lists = append(response.Lists, RuleListResponse{
			Name:       node.Name,
			EvalIndex:  node.EvalIndex,
			Rules:      len(node.Head.Rules),
			AlertSinks: len(node.Head.AlertList),
			LogSinks:   len(node.Head.LogList),
		})
	}
	return response
}

// ReloadHandler recompiles the rules. A failed reload leaves the live
// rules in place and is reported as a server error.
func ReloadHandler(appContext AppContext, r *http.Request) interface{} {
	if err := appContext.Engine.Reload(); err != nil {
		return HttpErrorResponse(http.StatusInternalServerError, err.Error())
	}
	return appContext.Engine.Status()
}
