/*
Package conductor is an event-driven workflow orchestrator.

A workflow is a registry of named actions and of triggers binding event keys
to (action, condition) pairs. A task binds a workflow to one independent
state. Delivering an event to a task resolves the first trigger, in
registration order, whose condition holds and whose action accepts the
current state; the action runs, and on success its new state is committed.
Every delivery is recorded in an append-only invocation log.

# Packages

  - pkg/workflow: actions, conditions, triggers and event resolution.
  - pkg/orchestrator: tasks, per-task serialisation, commits and logs.
  - pkg/definition and pkg/dsl: declare workflows in YAML/JSON or in Go.
  - pkg/adapters: memory, file and Redis stores; HTTP and MCP transports;
    allow-listed command tools.
  - pkg/messenger: where notify actions deliver messages.
  - pkg/observability: Prometheus metrics and structured logging hooks.

# Usage

The Conductor facade assembles an orchestrator from a Config:

	cfg, err := conductor.LoadConfig("conductor.yaml")
	if err != nil {
		log.Fatal(err)
	}
	c, err := conductor.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	task, err := c.InitTask(ctx, "procurement", nil)
	if err != nil {
		log.Fatal(err)
	}
	entry := c.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))
	if next, ok := orchestrator.FollowUp(entry); ok {
		c.HandleEvent(ctx, task.ID, next)
	}

Follow-up events are never dispatched automatically: the caller decides
whether to deliver them.
*/
package conductor
