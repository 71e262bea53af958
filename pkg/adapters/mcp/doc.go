// Package mcp exposes the orchestrator to Model Context Protocol clients.
//
// Tools: list_workflows, init_task, handle_event, get_task and get_graph.
// Resource: conductor://workflows.
package mcp
