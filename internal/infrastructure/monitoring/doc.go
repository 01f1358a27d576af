/*
Package monitoring exposes the agent's own health as Prometheus metrics.

# Overview

The agent runs inside someone else's process, so it reports on itself:
segments handed to the reporter or skipped, the fate of every queued stream
message, reconnects, finished streams by status, queue depth per client and
configuration discovery polls.

# Usage

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	metrics.RecordSegmentReported()
	metrics.SetQueueDepth("reporter", monitoring.QueuePending, 12)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

Every Record/Set method is safe on a nil *Metrics, so components can be
built without a registry in tests.
*/
package monitoring
