package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseRFC3339(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}

	return t
}

// WorkflowRepository stores the full definition as a JSON document alongside
// the columns queries filter on.
type WorkflowRepository struct {
	db *sql.DB
}

func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	definition, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, active, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			definition = excluded.definition,
			updated_at = excluded.updated_at`,
		workflow.ID, workflow.Name, workflow.Active, string(definition),
		workflow.CreatedAt.UTC().Format(time.RFC3339Nano),
		workflow.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &persistence.StoreError{Op: "save workflow", ID: workflow.ID, Err: err}
	}

	return nil
}

func (r *WorkflowRepository) All(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, "SELECT definition FROM workflows ORDER BY created_at, id")
}

func (r *WorkflowRepository) Active(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, "SELECT definition FROM workflows WHERE active ORDER BY created_at, id")
}

func (r *WorkflowRepository) ByID(ctx context.Context, id string) (*models.Workflow, error) {
	var definition string

	err := r.db.QueryRowContext(ctx, "SELECT definition FROM workflows WHERE id = $1", id).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "get workflow", ID: id, Err: err}
	}

	var workflow models.Workflow

	err = json.Unmarshal([]byte(definition), &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) query(ctx context.Context, statement string) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, &persistence.StoreError{Op: "list workflows", Err: err}
	}
	defer rows.Close()

	var workflows []*models.Workflow

	for rows.Next() {
		var definition string

		err := rows.Scan(&definition)
		if err != nil {
			return nil, &persistence.StoreError{Op: "scan workflow", Err: err}
		}

		var workflow models.Workflow

		err = json.Unmarshal([]byte(definition), &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, rows.Err()
}

// InstanceRepository keeps one row per instance with a unique
// (workflow_id, event_id) key enforcing the idempotent-create contract.
type InstanceRepository struct {
	db *sql.DB
}

func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) (*models.WorkflowInstance, bool, error) {
	contextJSON, err := json.Marshal(instance.Context)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal instance context: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances
			(id, workflow_id, event_id, current_step_id, status, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workflow_id, event_id) DO NOTHING`,
		instance.ID, instance.WorkflowID, instance.EventID, instance.CurrentStepID,
		string(instance.Status), string(contextJSON),
		instance.CreatedAt.UTC().Format(time.RFC3339Nano),
		instance.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, false, &persistence.StoreError{Op: "create instance", ID: instance.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, &persistence.StoreError{Op: "create instance", ID: instance.ID, Err: err}
	}

	if affected == 0 {
		existing, err := r.ByWorkflowAndEvent(ctx, instance.WorkflowID, instance.EventID)
		if err != nil {
			return nil, false, err
		}

		return existing, false, nil
	}

	return instance, true, nil
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	contextJSON, err := json.Marshal(instance.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal instance context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE workflow_instances
		SET current_step_id = $1, status = $2, context = $3, updated_at = $4
		WHERE id = $5`,
		instance.CurrentStepID, string(instance.Status), string(contextJSON),
		nowRFC3339(), instance.ID)
	if err != nil {
		return &persistence.StoreError{Op: "save instance", ID: instance.ID, Err: err}
	}

	return nil
}

func (r *InstanceRepository) ByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, event_id, current_step_id, status, context, created_at, updated_at
		FROM workflow_instances WHERE id = $1`, id))
}

func (r *InstanceRepository) ByWorkflowAndEvent(ctx context.Context, workflowID, eventID string) (*models.WorkflowInstance, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, event_id, current_step_id, status, context, created_at, updated_at
		FROM workflow_instances WHERE workflow_id = $1 AND event_id = $2`, workflowID, eventID))
}

func (r *InstanceRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to models.InstanceStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(to), nowRFC3339(), id, string(from))
	if err != nil {
		return false, &persistence.StoreError{Op: "swap instance status", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, &persistence.StoreError{Op: "swap instance status", ID: id, Err: err}
	}

	return affected == 1, nil
}

func (r *InstanceRepository) scanOne(row *sql.Row) (*models.WorkflowInstance, error) {
	var (
		instance    models.WorkflowInstance
		status      string
		contextJSON string
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(&instance.ID, &instance.WorkflowID, &instance.EventID,
		&instance.CurrentStepID, &status, &contextJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrInstanceNotFound
	}

	if err != nil {
		return nil, &persistence.StoreError{Op: "get instance", Err: err}
	}

	instance.Status = models.InstanceStatus(status)
	instance.CreatedAt = parseRFC3339(createdAt)
	instance.UpdatedAt = parseRFC3339(updatedAt)

	err = json.Unmarshal([]byte(contextJSON), &instance.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance context: %w", err)
	}

	return &instance, nil
}
