// Package config provides 12-factor configuration for the tracing agent.
//
// Values start from Default(), are optionally overridden by a YAML or TOML
// file, and are finally overridden by environment variables using the names
// the SkyWalking agents share. YAML durations use Go syntax ("5s"); TOML has
// no duration type, so TOML durations are integer nanoseconds.
//
// Configuration Sections:
//   - Agent: service and instance names, ignored operation suffixes
//   - Collector: OAP address, authentication token, protocol, compression
//   - Reporter: queue limit and stream rotation
//   - Reconnect: backoff between failed streams
//   - CDS: configuration discovery polling
//   - Logging: log level and output format
//   - Admin: metrics and health listener, CORS origins, rate limit
//
// Example Usage:
//
//	cfg, err := config.LoadFile("agent.yaml")
//	if err != nil {
//		return err
//	}
//	t, err := tracer.New(cfg)
//
// Environment Variables:
//   - SW_AGENT_NAME, SW_AGENT_INSTANCE_NAME, SW_AGENT_IGNORE_SUFFIX
//   - SW_AGENT_COLLECTOR_BACKEND_SERVICES, SW_AGENT_AUTHENTICATION, SW_AGENT_PROTOCOL
//   - SW_AGENT_REPORTER_*, SW_AGENT_RECONNECT_*, SW_AGENT_CDS_*
//   - SW_AGENT_COLLECTOR_COMPRESSION, SW_AGENT_COLLECTOR_MAX_MESSAGE_SIZE
//   - SW_AGENT_LOG_LEVEL, SW_AGENT_LOG_DEV, SW_AGENT_ADMIN_*
package config
