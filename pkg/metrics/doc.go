// Package metrics exposes Prometheus instrumentation for the scheduler:
// offer and launch counters, snapshot persistence latency, admin API request
// counts and a periodically refreshed servers-by-state gauge.
package metrics
