package models

import (
	"errors"
	"fmt"
	"time"
)

// TerminalTarget is the reserved transition target that completes an instance.
const TerminalTarget = "__end__"

// StepKind distinguishes auto-executing steps from steps that pause the
// instance until a human task outcome is supplied.
type StepKind string

const (
	StepKindAutoAction StepKind = "auto_action"
	StepKindHumanTask  StepKind = "human_task"
)

// Workflow is a declarative definition: a trigger gating which events it
// reacts to plus a step graph describing how. Definitions are created through
// the API and read-only to the execution engine.
type Workflow struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"            validate:"required,min=3"`
	Trigger       Trigger          `json:"trigger"`
	InitialStepID string           `json:"initial_step_id" validate:"required"`
	Steps         map[string]*Step `json:"steps"           validate:"required"`
	Active        bool             `json:"active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Trigger gates whether a definition applies to an event: the type must equal
// the event's template_id and the condition must hold against the event.
type Trigger struct {
	Type      string     `json:"type" validate:"required"`
	Condition *Condition `json:"condition,omitempty"`
}

type Step struct {
	Name        string       `json:"name"`
	Kind        StepKind     `json:"kind"`
	Actions     []Action     `json:"actions,omitempty"`
	Transitions []Transition `json:"transitions,omitempty"`
}

type Action struct {
	Type   string         `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// Transition is a guarded edge. A nil condition means "always".
type Transition struct {
	Condition    *Condition `json:"condition,omitempty"`
	TargetStepID string     `json:"target_step_id"`
}

// ErrInvalidDefinition is the root of every definition validation failure.
// Definitions are rejected at creation time; the engine never discovers a
// bad graph or an unknown action type at run time.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// ValidateGraph checks the step-graph invariants: a non-empty step set, a
// resolvable initial step, valid step kinds, transition targets that are
// steps or the terminal marker, registered action types and known condition
// operators.
func (w *Workflow) ValidateGraph(actionRegistered func(actionType string) bool) error {
	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow has no steps", ErrInvalidDefinition)
	}

	if _, ok := w.Steps[w.InitialStepID]; !ok {
		return fmt.Errorf("%w: initial_step_id %q is not a step", ErrInvalidDefinition, w.InitialStepID)
	}

	if err := validateCondition(w.Trigger.Condition, "trigger"); err != nil {
		return err
	}

	for stepID, step := range w.Steps {
		if step == nil {
			return fmt.Errorf("%w: step %q is empty", ErrInvalidDefinition, stepID)
		}

		if step.Kind != StepKindAutoAction && step.Kind != StepKindHumanTask {
			return fmt.Errorf("%w: step %q has unknown kind %q", ErrInvalidDefinition, stepID, step.Kind)
		}

		for i, action := range step.Actions {
			if !actionRegistered(action.Type) {
				return fmt.Errorf("%w: step %q action %d has unregistered type %q",
					ErrInvalidDefinition, stepID, i, action.Type)
			}
		}

		for i, transition := range step.Transitions {
			if transition.TargetStepID != TerminalTarget {
				if _, ok := w.Steps[transition.TargetStepID]; !ok {
					return fmt.Errorf("%w: step %q transition %d targets unknown step %q",
						ErrInvalidDefinition, stepID, i, transition.TargetStepID)
				}
			}

			if err := validateCondition(transition.Condition, fmt.Sprintf("step %q transition %d", stepID, i)); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateCondition(c *Condition, where string) error {
	if c == nil {
		return nil
	}

	for i := range c.All {
		if err := validateCondition(&c.All[i], where); err != nil {
			return err
		}
	}

	for i := range c.Any {
		if err := validateCondition(&c.Any[i], where); err != nil {
			return err
		}
	}

	if c.Path != "" && !KnownOp(c.Op) {
		return fmt.Errorf("%w: %s condition uses unknown operator %q", ErrInvalidDefinition, where, c.Op)
	}

	return nil
}
