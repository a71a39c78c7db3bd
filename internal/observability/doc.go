// Package observability provides structured logging, metrics, and tracing
// for the header authentication service.
//
// This package implements:
//   - Structured logging (zap-based) configured from environment
//   - Prometheus counters for authentication outcomes
//   - The OpenTelemetry tracer used around credential lookups
package observability
