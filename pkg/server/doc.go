// Package server exposes the planner over HTTP.
//
// Routes:
//
//	POST   /plan                         plan for a required capability
//	GET    /healthz                      liveness, solver back end and run store health
//	GET    /metrics                      Prometheus metrics
//	GET    /runs                         run history, newest first (limit, offset)
//	GET    /runs/{id}                    one run with its horizon attempts
//	DELETE /runs/{id}                    a run with everything recorded for it
//	GET    /runs/{id}/events             the run's event log (level, limit, offset)
//	GET    /runs/{id}/artifacts/{kind}   a stored problem, model or plan
//
// A plan request reads facts from the server's model files unless it sets
// mode to sparql-endpoint with an endpoint URL. Exhausted searches answer
// 200 with the unsat core; plans rejected by policy answer 422 with the
// violations.
package server
