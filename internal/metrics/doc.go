// Package metrics holds the service's Prometheus instruments: HTTP
// request counters and latencies, LLM call and token usage, tool
// executions, and client-credentials token exchanges. Instruments are
// registered via promauto into the default registry, so a namespace
// must be created exactly once per process.
package metrics
