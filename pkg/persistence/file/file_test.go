package file

import (
	"context"
	"testing"
	"time"

	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow(id string, active bool) *models.Workflow {
	return &models.Workflow{
		ID:            id,
		Name:          "Test workflow " + id,
		Trigger:       models.Trigger{Type: "form_submitted"},
		InitialStepID: "step1",
		Active:        active,
		Steps: map[string]*models.Step{
			"step1": {Kind: models.StepKindAutoAction},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestWorkflowRepository(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.Workflows().Save(ctx, testWorkflow("wf-1", true)))
	require.NoError(t, p.Workflows().Save(ctx, testWorkflow("wf-2", false)))

	all, err := p.Workflows().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := p.Workflows().Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "wf-1", active[0].ID)

	loaded, err := p.Workflows().ByID(ctx, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, "Test workflow wf-2", loaded.Name)
	assert.Contains(t, loaded.Steps, "step1")

	_, err = p.Workflows().ByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestInstanceRepository_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	instance := &models.WorkflowInstance{
		ID:            "inst-1",
		WorkflowID:    "wf-1",
		EventID:       "evt-1",
		CurrentStepID: "step1",
		Status:        models.InstanceStatusRunning,
		Context:       map[string]any{"org_id": "0"},
	}

	stored, created, err := p.Instances().Create(ctx, instance)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "inst-1", stored.ID)

	// A redelivered entry creates a second candidate with a fresh ID, but the
	// (workflow_id, event_id) key must resolve to the original record.
	duplicate := &models.WorkflowInstance{
		ID:         "inst-2",
		WorkflowID: "wf-1",
		EventID:    "evt-1",
		Status:     models.InstanceStatusRunning,
	}

	stored, created, err = p.Instances().Create(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "inst-1", stored.ID)

	byKey, err := p.Instances().ByWorkflowAndEvent(ctx, "wf-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", byKey.ID)

	_, err = p.Instances().ByWorkflowAndEvent(ctx, "wf-1", "evt-other")
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestInstanceRepository_CompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	instance := &models.WorkflowInstance{
		ID:         "inst-1",
		WorkflowID: "wf-1",
		EventID:    "evt-1",
		Status:     models.InstanceStatusWaitingHuman,
	}

	_, _, err := p.Instances().Create(ctx, instance)
	require.NoError(t, err)

	swapped, err := p.Instances().CompareAndSwapStatus(ctx, "inst-1",
		models.InstanceStatusWaitingHuman, models.InstanceStatusRunning)
	require.NoError(t, err)
	assert.True(t, swapped)

	// Second swap observes RUNNING and must refuse.
	swapped, err = p.Instances().CompareAndSwapStatus(ctx, "inst-1",
		models.InstanceStatusWaitingHuman, models.InstanceStatusRunning)
	require.NoError(t, err)
	assert.False(t, swapped)

	loaded, err := p.Instances().ByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, loaded.Status)

	_, err = p.Instances().CompareAndSwapStatus(ctx, "missing",
		models.InstanceStatusWaitingHuman, models.InstanceStatusRunning)
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}
