package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// Handler processes one task and returns its result bytes, or an error
// if the task failed. It generalizes the teacher's cmd/worker/main.go
// switch-on-task.Type dispatch (processEmail/processImageResize/...)
// into a registerable function keyed by Task.Name.
type Handler func(ctx context.Context, t *tasks.Task) ([]byte, error)

// Registry maps task names to their Handler, guarded for concurrent
// registration and lookup since handlers are typically registered
// during startup from multiple init-style call sites.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry constructs an empty handler Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates a Handler with a task name, overwriting any
// previous registration for that name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the Handler registered for name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ErrUnknownHandler names the task type in its message so a failed
// task's stored error is actionable without a stack trace.
func ErrUnknownHandler(name string) error {
	return fmt.Errorf("no handler registered for task name %q", name)
}
