package engine

import (
	"context"
	"fmt"

	"github.com/nkapadia/mailbridge/internal/domain"
)

// Handler processes one job envelope and reports the outcome. Handlers
// return outcomes for expected failure modes instead of raising; anything
// that escapes is caught at the worker boundary and treated as retryable.
type Handler interface {
	Handle(ctx context.Context, env *domain.JobEnvelope) domain.JobOutcome
}

// Registry maps job types to handlers. It is populated once at startup and
// read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(jobType string, h Handler) error {
	if jobType == "" {
		return fmt.Errorf("job type is required")
	}
	if h == nil {
		return fmt.Errorf("handler for %s is nil", jobType)
	}
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler for %s already registered", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

func (r *Registry) Resolve(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
