/*
Package ports defines the driven ports (interfaces) for the Conductor orchestrator.

These interfaces decouple the orchestration core from external implementations,
allowing it to work with various storage backends, lock services and message
transports.

# Key Interfaces

  - TaskStore: persists and loads Tasks (committed state).
  - LogStore: appends and lists InvocationLogs.
  - DistributedLocker: serialises access to a task across instances.
  - Messenger: delivers named messages to recipient roles on behalf of actions.
*/
package ports
