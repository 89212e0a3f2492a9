// Package persistence provides the storage abstraction for workflow
// definitions and workflow instances.
package persistence

import (
	"context"

	"github.com/rbarros/cascata/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Instances() InstanceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. The engine only ever reads
// them; writes come from the API.
type WorkflowRepository interface {
	All(ctx context.Context) ([]*models.Workflow, error)
	Active(ctx context.Context) ([]*models.Workflow, error)
	ByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
}

// InstanceRepository is the instance store, the only mutable state shared
// between consumers.
type InstanceRepository interface {
	// Create inserts the instance unless one already exists for the same
	// (workflow_id, event_id) pair. The stored instance is returned either
	// way; created reports whether a new record was written. This is the
	// idempotency boundary guarding against redelivered log entries.
	Create(ctx context.Context, instance *models.WorkflowInstance) (stored *models.WorkflowInstance, created bool, err error)
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	ByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	ByWorkflowAndEvent(ctx context.Context, workflowID, eventID string) (*models.WorkflowInstance, error)
	// CompareAndSwapStatus atomically moves the instance from one status to
	// another, returning false when the stored status differs. It guards the
	// WAITING_HUMAN to RUNNING transition against concurrent resume calls.
	CompareAndSwapStatus(ctx context.Context, id string, from, to models.InstanceStatus) (bool, error)
}
