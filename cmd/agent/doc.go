// Command agent runs a standalone SkyWalking reporting agent.
//
// It connects to the OAP collector, keeps the configuration-discovery poll
// running, and serves health and Prometheus metrics on the admin address.
// Applications embedding the tracer use internal/tracer directly; this
// binary is for exercising a collector and for sidecar deployments.
//
// Usage:
//
//	# Collector from the environment
//	SW_AGENT_NAME=checkout SW_AGENT_COLLECTOR_BACKEND_SERVICES=oap:11800 ./agent
//
//	# Config file with TLS
//	./agent -config agent.toml -ca /etc/skytrace/ca.pem
//
// Signals:
//   - SIGINT, SIGTERM: flush queued segments for up to the shutdown timeout, then exit
package main
