// Package server provides the agent's admin HTTP listener.
//
// Routes:
//   - GET /: service, instance and collector of this agent
//   - GET /healthz: reporter and config-sync status, 503 once the tracer is closed
//   - GET /metrics: Prometheus exposition of the agent registry
//
// Middleware: recovery, request metrics, optional CORS for the configured
// origins, and a per-client rate limit.
//
// Example Usage:
//
//	srv := server.New(cfg, server.Deps{Status: t, Gatherer: reg, Metrics: metrics})
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
