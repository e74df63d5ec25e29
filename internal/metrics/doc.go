// Package metrics exposes Prometheus collectors for the chat dashboard.
//
// Collectors live on a private registry so tests and multiple servers in one
// process never collide. Every recording method is safe on a nil *Metrics.
package metrics
