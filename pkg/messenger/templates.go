package messenger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// Templates is a concurrency-safe registry of keyed message payloads.
type Templates struct {
	mu       sync.RWMutex
	messages map[string]any
}

// NewTemplates creates an empty registry.
func NewTemplates() *Templates {
	return &Templates{messages: make(map[string]any)}
}

// RegisterMessage stores payload under key, replacing any previous payload.
func (t *Templates) RegisterMessage(key string, payload any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.messages == nil {
		t.messages = make(map[string]any)
	}
	t.messages[key] = payload
}

// Lookup returns the payload registered under key.
func (t *Templates) Lookup(key string) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	payload, ok := t.messages[key]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", domain.ErrMessageNotRegistered, key)
	}
	return payload, nil
}

// Keys returns the registered keys in sorted order.
func (t *Templates) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.messages))
	for k := range t.messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
