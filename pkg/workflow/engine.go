package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rbarros/cascata/pkg/eventbus"
	"github.com/rbarros/cascata/pkg/events"
	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/registry"
)

// ErrInvalidState is returned by Resume when the instance is not waiting on a
// human task.
var ErrInvalidState = errors.New("instance is not waiting on a human task")

// Engine advances workflow instances through their step graphs. All state
// lives in the instance record; the engine itself is stateless and safe to
// run in many worker processes at once.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

func NewEngine(
	p persistence.Persistence,
	r *registry.Registry,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: p,
		registry:    r,
		bus:         bus,
		logger:      logger.With("module", "engine"),
	}
}

// Start creates an instance for the (definition, event) pair and advances it
// until it completes, fails, or suspends on a human task. Redelivered events
// are absorbed here: when an instance already exists for the pair, Start
// returns it untouched.
//
// The returned error covers infrastructure failures only (storage, broker).
// Domain failures land in the instance status.
func (e *Engine) Start(
	ctx context.Context,
	def *models.Workflow,
	event *models.Event,
) (*models.WorkflowInstance, error) {
	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:            uuid.New().String(),
		WorkflowID:    def.ID,
		EventID:       event.ID,
		CurrentStepID: def.InitialStepID,
		Status:        models.InstanceStatusRunning,
		Context:       event.MatchContext(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, created, err := e.persistence.Instances().Create(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	if !created {
		e.logger.Info("Instance already exists for event, skipping",
			"workflow_id", def.ID, "event_id", event.ID, "instance_id", stored.ID)

		return stored, nil
	}

	e.logger.Info("Started workflow instance",
		"workflow_id", def.ID, "event_id", event.ID, "instance_id", stored.ID)

	e.publish(ctx, events.InstanceStarted{
		BaseEvent:     e.baseEvent(events.InstanceStartedEvent, stored),
		InitialStepID: stored.CurrentStepID,
	})

	if err := e.advance(ctx, def, stored, false); err != nil {
		return nil, err
	}

	return stored, nil
}

// Resume supplies a human task outcome to a waiting instance and advances it.
// The outcome map is merged into the instance context at the top level before
// the suspended step's actions run.
func (e *Engine) Resume(
	ctx context.Context,
	instanceID string,
	outcome map[string]any,
) (*models.WorkflowInstance, error) {
	instance, err := e.persistence.Instances().ByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceStatusWaitingHuman {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInvalidState, instanceID, instance.Status)
	}

	def, err := e.persistence.Workflows().ByID(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}

	// The CAS loses against a concurrent resume of the same instance; the
	// loser reports invalid state rather than applying the outcome twice.
	swapped, err := e.persistence.Instances().CompareAndSwapStatus(
		ctx, instanceID, models.InstanceStatusWaitingHuman, models.InstanceStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("resume instance %s: %w", instanceID, err)
	}

	if !swapped {
		return nil, fmt.Errorf("%w: instance %s was resumed concurrently", ErrInvalidState, instanceID)
	}

	instance.Status = models.InstanceStatusRunning

	if instance.Context == nil {
		instance.Context = make(map[string]any)
	}

	for k, v := range outcome {
		instance.Context[k] = v
	}

	if err := e.saveInstance(ctx, instance); err != nil {
		return nil, err
	}

	e.logger.Info("Resumed workflow instance",
		"instance_id", instance.ID, "step_id", instance.CurrentStepID)

	e.publish(ctx, events.InstanceResumed{
		BaseEvent: e.baseEvent(events.InstanceResumedEvent, instance),
		StepID:    instance.CurrentStepID,
	})

	if err := e.advance(ctx, def, instance, true); err != nil {
		return nil, err
	}

	return instance, nil
}

// advance runs the instance's current step and follows transitions until the
// instance suspends or terminates. When resumed is true the current step is a
// human task whose outcome was just supplied, so it executes instead of
// suspending again; the flag is consumed by that first step.
func (e *Engine) advance(
	ctx context.Context,
	def *models.Workflow,
	instance *models.WorkflowInstance,
	resumed bool,
) error {
	for instance.Status == models.InstanceStatusRunning {
		step, ok := def.Steps[instance.CurrentStepID]
		if !ok {
			return e.fail(ctx, instance, instance.CurrentStepID, -1, "",
				fmt.Sprintf("step %q not found in definition %s", instance.CurrentStepID, def.ID))
		}

		if step.Kind == models.StepKindHumanTask && !resumed {
			instance.Status = models.InstanceStatusWaitingHuman
			if err := e.saveInstance(ctx, instance); err != nil {
				return err
			}

			e.logger.Info("Instance waiting on human task",
				"instance_id", instance.ID, "step_id", instance.CurrentStepID)

			e.publish(ctx, events.InstanceWaiting{
				BaseEvent: e.baseEvent(events.InstanceWaitingEvent, instance),
				StepID:    instance.CurrentStepID,
			})

			return nil
		}

		resumed = false

		failed, err := e.executeActions(ctx, instance, step)
		if err != nil || failed {
			return err
		}

		target, matched := nextTarget(step, instance.Context)
		if !matched || target == models.TerminalTarget {
			finalStep := instance.CurrentStepID
			instance.Status = models.InstanceStatusCompleted

			if err := e.saveInstance(ctx, instance); err != nil {
				return err
			}

			e.logger.Info("Instance completed",
				"instance_id", instance.ID, "final_step_id", finalStep)

			e.publish(ctx, events.InstanceCompleted{
				BaseEvent:   e.baseEvent(events.InstanceCompletedEvent, instance),
				FinalStepID: finalStep,
			})

			return nil
		}

		instance.CurrentStepID = target
		if err := e.saveInstance(ctx, instance); err != nil {
			return err
		}
	}

	return nil
}

// executeActions dispatches the step's actions in order, merging each output
// into the instance context under actions.<step_id>.<index>. A failed result
// moves the instance to FAILED and stops the step; failed reports that.
func (e *Engine) executeActions(
	ctx context.Context,
	instance *models.WorkflowInstance,
	step *models.Step,
) (failed bool, err error) {
	for i, action := range step.Actions {
		executor, err := e.registry.ExecutorFor(action.Type)
		if err != nil {
			// ValidateGraph guarantees registered types at creation time, so
			// this only happens when the registry shrank across deploys.
			return true, e.fail(ctx, instance, instance.CurrentStepID, i, action.Type, err.Error())
		}

		result, err := executor.Execute(ctx, action, instance.Context)
		if err != nil {
			return false, fmt.Errorf("execute action %s: %w", action.Type, err)
		}

		e.mergeActionOutput(instance, instance.CurrentStepID, i, result.Output)

		if result.Status == models.ActionFailed {
			message := fmt.Sprintf("action %s failed", action.Type)
			if errText, ok := result.Output["error"].(string); ok {
				message = errText
			}

			return true, e.fail(ctx, instance, instance.CurrentStepID, i, action.Type, message)
		}
	}

	return false, nil
}

// fail moves the instance to FAILED, recording where and why in the context.
// Failing is a successful outcome from the log's point of view, so it returns
// only storage errors.
func (e *Engine) fail(
	ctx context.Context,
	instance *models.WorkflowInstance,
	stepID string,
	actionIndex int,
	actionType string,
	message string,
) error {
	instance.Status = models.InstanceStatusFailed

	if instance.Context == nil {
		instance.Context = make(map[string]any)
	}

	failure := map[string]any{
		"step_id": stepID,
		"error":   message,
	}
	if actionIndex >= 0 {
		failure["action_index"] = actionIndex
		failure["action_type"] = actionType
	}

	instance.Context["failure"] = failure

	if err := e.saveInstance(ctx, instance); err != nil {
		return err
	}

	e.logger.Warn("Instance failed",
		"instance_id", instance.ID, "step_id", stepID, "error", message)

	e.publish(ctx, events.InstanceFailed{
		BaseEvent: e.baseEvent(events.InstanceFailedEvent, instance),
		StepID:    stepID,
		Error:     message,
	})

	return nil
}

func (e *Engine) mergeActionOutput(
	instance *models.WorkflowInstance,
	stepID string,
	index int,
	output map[string]any,
) {
	if instance.Context == nil {
		instance.Context = make(map[string]any)
	}

	actions, ok := instance.Context["actions"].(map[string]any)
	if !ok {
		actions = make(map[string]any)
		instance.Context["actions"] = actions
	}

	stepOutputs, ok := actions[stepID].(map[string]any)
	if !ok {
		stepOutputs = make(map[string]any)
		actions[stepID] = stepOutputs
	}

	stepOutputs[strconv.Itoa(index)] = output
}

// nextTarget evaluates the step's transitions in order against the context
// and returns the first matching target. matched is false when no transition
// fires, which completes the instance.
func nextTarget(step *models.Step, context map[string]any) (target string, matched bool) {
	for _, transition := range step.Transitions {
		if transition.Condition.Evaluate(context) {
			return transition.TargetStepID, true
		}
	}

	return "", false
}

func (e *Engine) saveInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	instance.UpdatedAt = time.Now().UTC()

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return fmt.Errorf("save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (e *Engine) baseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: instance.WorkflowID,
		InstanceID: instance.ID,
		EventID:    instance.EventID,
	}
}

// publish sends a lifecycle notification without letting broker trouble
// affect instance state. The instance record is the source of truth.
func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, string(event.GetType()), event); err != nil {
		e.logger.Warn("Failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
