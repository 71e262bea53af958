// Package http exposes the orchestrator as a JSON API over a chi router,
// with Prometheus metrics and a server-sent event stream of state diffs.
package http
