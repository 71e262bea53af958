/*
Package orchestrator owns workflow definitions and the tasks running them.

An Orchestrator routes events to tasks: it loads the task's committed state,
lets the task's workflow resolve the event against that state, commits the
new state when the selected action succeeds, and appends an invocation log
for every delivery, whatever its outcome.

Event delivery is total. Lookup failures and action failures come back as
failed logs rather than errors, and never change a task's committed state.
*/
package orchestrator
