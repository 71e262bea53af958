/*
Package observability provides lifecycle hooks for monitoring the orchestrator.

Metrics exports Prometheus counters and histograms for task creation, event
handling and action cost. LoggingHooks writes the same lifecycle to a slog
logger. Combine fans a lifecycle event out to several hook sets.
*/
package observability
