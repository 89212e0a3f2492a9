package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance. Completed and
// Failed are terminal; WaitingHuman suspends the instance until a resume call
// supplies the human task outcome.
type InstanceStatus string

const (
	InstanceStatusRunning      InstanceStatus = "running"
	InstanceStatusWaitingHuman InstanceStatus = "waiting_human"
	InstanceStatusCompleted    InstanceStatus = "completed"
	InstanceStatusFailed       InstanceStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed
}

// WorkflowInstance is one execution of a definition against one event. The
// context starts from the event's match context and accumulates per-step
// action outputs under "actions.<step_id>.<index>"; it is the substitution
// namespace for templated action configuration.
type WorkflowInstance struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	EventID       string         `json:"event_id"`
	CurrentStepID string         `json:"current_step_id"`
	Status        InstanceStatus `json:"status"`
	Context       map[string]any `json:"context"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
