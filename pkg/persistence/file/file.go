// Package file provides file-based persistence for development and tests.
// Workflows and instances are stored as one JSON document per record; a
// process-wide mutex stands in for the transactional guarantees a database
// would give.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence"
)

type Persistence struct {
	root      string
	mu        sync.Mutex
	workflows *WorkflowRepository
	instances *InstanceRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	p := &Persistence{root: cleanRoot}
	p.workflows = &WorkflowRepository{persistence: p}
	p.instances = &InstanceRepository{persistence: p}

	return p
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) workflowPath(id string) string {
	return filepath.Join(p.root, "workflows", id+".json")
}

func (p *Persistence) instancePath(id string) string {
	return filepath.Join(p.root, "instances", id+".json")
}

func writeJSON(path string, v any) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

// WorkflowRepository stores one definition per JSON file under
// <root>/workflows.
type WorkflowRepository struct {
	persistence *Persistence
}

func (r *WorkflowRepository) All(_ context.Context) ([]*models.Workflow, error) {
	dir := filepath.Join(r.persistence.root, "workflows")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var workflow models.Workflow

		err := readJSON(filepath.Join(dir, entry.Name()), &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow %s: %w", entry.Name(), err)
		}

		workflows = append(workflows, &workflow)
	}

	// Directory listing order is not guaranteed; storage order is creation time.
	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}

		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) Active(ctx context.Context) ([]*models.Workflow, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.Active {
			active = append(active, workflow)
		}
	}

	return active, nil
}

func (r *WorkflowRepository) ByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(r.persistence.workflowPath(id), &workflow)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return writeJSON(r.persistence.workflowPath(workflow.ID), workflow)
}

// InstanceRepository stores one instance per JSON file under
// <root>/instances.
type InstanceRepository struct {
	persistence *Persistence
}

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) (*models.WorkflowInstance, bool, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	existing, err := r.findByWorkflowAndEvent(instance.WorkflowID, instance.EventID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		return existing, false, nil
	}

	err = writeJSON(r.persistence.instancePath(instance.ID), instance)
	if err != nil {
		return nil, false, err
	}

	return instance, true, nil
}

func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return writeJSON(r.persistence.instancePath(instance.ID), instance)
}

func (r *InstanceRepository) ByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := readJSON(r.persistence.instancePath(id), &instance)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	return &instance, nil
}

func (r *InstanceRepository) ByWorkflowAndEvent(_ context.Context, workflowID, eventID string) (*models.WorkflowInstance, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	instance, err := r.findByWorkflowAndEvent(workflowID, eventID)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, persistence.ErrInstanceNotFound
	}

	return instance, nil
}

func (r *InstanceRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to models.InstanceStatus) (bool, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var instance models.WorkflowInstance

	err := readJSON(r.persistence.instancePath(id), &instance)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, persistence.ErrInstanceNotFound
		}

		return false, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	if instance.Status != from {
		return false, nil
	}

	instance.Status = to
	instance.UpdatedAt = time.Now().UTC()

	err = writeJSON(r.persistence.instancePath(id), &instance)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *InstanceRepository) findByWorkflowAndEvent(workflowID, eventID string) (*models.WorkflowInstance, error) {
	dir := filepath.Join(r.persistence.root, "instances")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var instance models.WorkflowInstance

		err := readJSON(filepath.Join(dir, entry.Name()), &instance)
		if err != nil {
			return nil, fmt.Errorf("failed to read instance %s: %w", entry.Name(), err)
		}

		if instance.WorkflowID == workflowID && instance.EventID == eventID {
			return &instance, nil
		}
	}

	return nil, nil
}
