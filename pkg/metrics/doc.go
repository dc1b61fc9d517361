/*
Package metrics exposes Prometheus instrumentation for the engine: store
and entity gauges, WAL append and seal counters, search latency
histograms, and fork/snapshot/integrity counters. Register once at
startup and mount Handler on the HTTP server's /metrics route.
*/
package metrics
