/*
Package redis provides Redis backed task storage, invocation logs and a
distributed per-task lock.

Tasks are stored as JSON under "<prefix><id>" with an optional TTL, and
indexed in a sorted set scored by creation time so List returns them in
creation order. Logs are JSON lists, one global and one per task.
*/
package redis
