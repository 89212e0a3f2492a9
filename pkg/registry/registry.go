// Package registry maps action types to their executors. The set of
// registered types is fixed at process start; definitions referencing an
// unregistered type are rejected when they are created, never at run time.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/rbarros/cascata/pkg/models"
)

type Registry struct {
	logger    *slog.Logger
	executors map[string]models.ActionExecutor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[string]models.ActionExecutor),
	}
}

// Register binds an action type to its executor, replacing any previous
// binding for the same type.
func (r *Registry) Register(actionType string, executor models.ActionExecutor) {
	r.executors[actionType] = executor
}

// ExecutorFor returns the executor bound to the action type.
func (r *Registry) ExecutorFor(actionType string) (models.ActionExecutor, error) {
	executor, ok := r.executors[actionType]
	if !ok {
		return nil, fmt.Errorf("action type %q not registered", actionType)
	}

	return executor, nil
}

// IsRegistered reports whether the action type has an executor. It is the
// predicate workflow-definition validation runs against.
func (r *Registry) IsRegistered(actionType string) bool {
	_, ok := r.executors[actionType]

	return ok
}

// Types returns the registered action types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.executors))
	for actionType := range r.executors {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}
