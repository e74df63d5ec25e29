// Package server assembles rocketlauncher into a single HTTP service.
//
// New opens the document store, builds the workflow caller, the assistants
// client and per-assistant adapter factory, the chat router and the
// dashboard, and mounts them on one mux together with:
//
//   - GET /health        liveness, always 200
//   - GET /health/ready  200 once the store answers a ping, 503 otherwise
//   - GET /metrics       Prometheus metrics when metrics.enabled is set
//
// Run listens on server.http_addr, or on a tsnet node when tailscale is
// enabled (plain HTTP on :80, tailnet HTTPS on :443, or public Funnel), and
// shuts down gracefully when its context is canceled.
package server
