package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rbarros/cascata/pkg/channels/gochannel"
	"github.com/rbarros/cascata/pkg/eventbus"
	"github.com/rbarros/cascata/pkg/events"
	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycleRecorder collects decoded lifecycle events from the bus. The test
// channel blocks publishes until the handler acks, so by the time an engine
// call returns every event it published has been recorded.
type lifecycleRecorder struct {
	mu   sync.Mutex
	seen []any
}

func (r *lifecycleRecorder) record(_ context.Context, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen = append(r.seen, event)

	return nil
}

func (r *lifecycleRecorder) events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]any(nil), r.seen...)
}

func TestEnginePublishesLifecycleEventsInOrder(t *testing.T) {
	pub, sub := gochannel.CreateTestChannel(watermill.NewSlogLogger(testLogger()))
	bus := eventbus.NewWatermillEventBus(pub, sub)

	recorder := &lifecycleRecorder{}
	for _, eventType := range []events.EventType{
		events.InstanceStartedEvent,
		events.InstanceWaitingEvent,
		events.InstanceResumedEvent,
		events.InstanceCompletedEvent,
		events.InstanceFailedEvent,
	} {
		require.NoError(t, bus.Handle(eventType, recorder.record))
	}

	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx))

	record := &recordingExecutor{result: &models.ActionResult{Status: models.ActionSucceeded}}
	p := file.NewPersistence(t.TempDir())
	engine := NewEngine(p, testRegistry(t, map[string]*recordingExecutor{"record": record}), bus, testLogger())

	suspended, err := engine.Start(ctx, approvalDefinition(), testEvent())
	require.NoError(t, err)

	resumed, err := engine.Resume(ctx, suspended.ID, map[string]any{"decision": "approved"})
	require.NoError(t, err)
	require.Equal(t, models.InstanceStatusCompleted, resumed.Status)

	require.NoError(t, bus.Close())

	seen := recorder.events()
	require.Len(t, seen, 4)

	started, ok := seen[0].(*events.InstanceStarted)
	require.True(t, ok, "first event should be instance.started, got %T", seen[0])
	assert.Equal(t, "wf-approval", started.WorkflowID)
	assert.Equal(t, suspended.ID, started.InstanceID)
	assert.Equal(t, "evt-1", started.EventID)
	assert.Equal(t, "approval", started.InitialStepID)

	waiting, ok := seen[1].(*events.InstanceWaiting)
	require.True(t, ok, "second event should be instance.waiting, got %T", seen[1])
	assert.Equal(t, "approval", waiting.StepID)

	resumedEvent, ok := seen[2].(*events.InstanceResumed)
	require.True(t, ok, "third event should be instance.resumed, got %T", seen[2])
	assert.Equal(t, "approval", resumedEvent.StepID)

	completed, ok := seen[3].(*events.InstanceCompleted)
	require.True(t, ok, "fourth event should be instance.completed, got %T", seen[3])
	assert.Equal(t, "payout", completed.FinalStepID)
	assert.Equal(t, suspended.ID, completed.InstanceID)
}

func TestEnginePublishesFailedEvent(t *testing.T) {
	pub, sub := gochannel.CreateTestChannel(watermill.NewSlogLogger(testLogger()))
	bus := eventbus.NewWatermillEventBus(pub, sub)

	recorder := &lifecycleRecorder{}
	require.NoError(t, bus.Handle(events.InstanceFailedEvent, recorder.record))

	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx))

	record := &recordingExecutor{result: &models.ActionResult{
		Status: models.ActionFailed,
		Output: map[string]any{"error": "smtp connection refused"},
	}}
	p := file.NewPersistence(t.TempDir())
	engine := NewEngine(p, testRegistry(t, map[string]*recordingExecutor{"record": record}), bus, testLogger())

	instance, err := engine.Start(ctx, linearDefinition(), testEvent())
	require.NoError(t, err)
	require.Equal(t, models.InstanceStatusFailed, instance.Status)

	require.NoError(t, bus.Close())

	seen := recorder.events()
	require.Len(t, seen, 1)

	failed, ok := seen[0].(*events.InstanceFailed)
	require.True(t, ok, "expected instance.failed, got %T", seen[0])
	assert.Equal(t, "notify", failed.StepID)
	assert.Equal(t, "smtp connection refused", failed.Error)
}
