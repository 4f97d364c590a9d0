// Package api exposes the operational HTTP surface of a run: liveness and
// Prometheus metrics.
package api
