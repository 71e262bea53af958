/*
Package domain contains the core value types of the Conductor orchestration engine.

It defines what flows through a workflow (States and Events), what an action
reports back (ActionResult), the durable handle for one workflow instance (Task)
and the audit record of every delivery (InvocationLog). The package is kept pure
and free of I/O so every adapter can depend on it.

# Key Entities

  - State: where a task currently is; replaced wholesale, never mutated in place.
  - Event: the stimulus delivered to a task.
  - ActionResult: outcome of resolving and invoking one action.
  - Task: binds a workflow definition to one committed State.
  - InvocationLog: append-only audit entry, one per delivered event.
*/
package domain
