// Package workflow implements the trigger resolution engine.
//
// A Workflow holds an ordered registry of actions and, per event key, an
// ordered list of triggers. Resolving an event walks the triggers for that key
// in registration order and invokes the first action whose trigger condition
// and guard both pass. A failing invocation is never retried against a later
// trigger.
package workflow
