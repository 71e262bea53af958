package middleware

import "github.com/aretw0/conductor/pkg/ports"

// Middleware wraps a TaskStore to add behavior.
type Middleware func(ports.TaskStore) ports.TaskStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.TaskStore, mws ...Middleware) ports.TaskStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
