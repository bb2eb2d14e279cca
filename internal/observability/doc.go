// Package observability provides structured logging, tracing helpers, and
// correlation-id propagation for the admission layer.
package observability
