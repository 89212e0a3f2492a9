package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allRegistered(string) bool { return true }

func validWorkflow() *Workflow {
	return &Workflow{
		ID:            "wf-1",
		Name:          "Welcome mail",
		Trigger:       Trigger{Type: "form_submitted"},
		InitialStepID: "step1",
		Active:        true,
		Steps: map[string]*Step{
			"step1": {
				Kind:    StepKindAutoAction,
				Actions: []Action{{Type: "send_email", Config: map[string]any{"to": "a@b.com"}}},
				Transitions: []Transition{
					{TargetStepID: TerminalTarget},
				},
			},
		},
	}
}

func TestWorkflow_ValidateGraph_Valid(t *testing.T) {
	require.NoError(t, validWorkflow().ValidateGraph(allRegistered))
}

func TestWorkflow_ValidateGraph_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *Workflow)
	}{
		{"no steps", func(w *Workflow) { w.Steps = nil }},
		{"dangling initial step", func(w *Workflow) { w.InitialStepID = "nope" }},
		{"unknown step kind", func(w *Workflow) { w.Steps["step1"].Kind = "robot_task" }},
		{"dangling transition target", func(w *Workflow) {
			w.Steps["step1"].Transitions[0].TargetStepID = "nope"
		}},
		{"unknown condition operator", func(w *Workflow) {
			w.Steps["step1"].Transitions[0].Condition = &Condition{Path: "x", Op: "like", Value: 1}
		}},
		{"unknown trigger operator", func(w *Workflow) {
			w.Trigger.Condition = &Condition{Path: "x", Op: "matches", Value: 1}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWorkflow()
			tt.mutate(w)

			err := w.ValidateGraph(allRegistered)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestWorkflow_ValidateGraph_UnregisteredAction(t *testing.T) {
	w := validWorkflow()

	err := w.ValidateGraph(func(actionType string) bool { return actionType != "send_email" })
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "send_email")
}

func TestWorkflow_ValidateGraph_TerminalMarkerAllowed(t *testing.T) {
	w := validWorkflow()
	w.Steps["step2"] = &Step{Kind: StepKindHumanTask, Transitions: []Transition{
		{Condition: &Condition{Path: "approved", Op: "==", Value: true}, TargetStepID: TerminalTarget},
	}}

	assert.NoError(t, w.ValidateGraph(allRegistered))
}
