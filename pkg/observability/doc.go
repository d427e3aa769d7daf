// Package observability provides structured logging and Prometheus metrics.
//
// Loggers and metrics are injected at construction time; nothing in this
// package holds process-wide mutable state.
package observability
