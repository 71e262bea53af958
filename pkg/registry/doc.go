/*
Package registry maps declared action kinds to Go implementations.

Declarative workflows name a kind for each action ("transition", "notify",
"reject", "call") plus free-form params. A Factory decodes the params with
mapstructure and returns a workflow.Action. The "call" kind runs a
ToolFunction registered by name, so Go code can be reached from YAML.
*/
package registry
