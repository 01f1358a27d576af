// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Agent components take a *zap.Logger and derive named children from it
// ("reporter", "cds", "dispatcher", "tracer") so every line identifies the
// subsystem that wrote it.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Named("reporter").Info("stream created", zap.Uint64("stream", 1))
package logging
