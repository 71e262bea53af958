/*
Package tasks serialises access to task records.

A Manager wraps a ports.TaskStore with per-task mutexes, so that a
load-resolve-commit cycle for one task never interleaves with another cycle
for the same task. Locks are reference counted and dropped once unused. An
optional ports.DistributedLocker extends the guarantee across replicas that
share a store.
*/
package tasks
