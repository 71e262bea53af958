package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Mask replaces sensitive values in stored task data.
const Mask = "***"

type piiMiddleware struct {
	next     ports.TaskStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values whose data key
// matches one of the patterns, at any nesting depth, before saving.
// The masked values are what later Loads return.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.TaskStore) ports.TaskStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, task domain.Task) error {
	// Clone first: the caller's task must keep the real values.
	cloned := task.Clone()
	maskMap(cloned.State.Data, m.patterns)
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, taskID string) (domain.Task, error) {
	return m.next.Load(ctx, taskID)
}

func (m *piiMiddleware) Delete(ctx context.Context, taskID string) error {
	return m.next.Delete(ctx, taskID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			maskMap(t, patterns)
		case []any:
			for _, item := range t {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
