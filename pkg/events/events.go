// Package events defines the instance lifecycle notifications published by
// the step engine.
package events

import "time"

type EventType string

// Topic carries every instance lifecycle event.
const Topic = "cascata.instances"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceStartedEvent   EventType = "instance.started"
	InstanceWaitingEvent   EventType = "instance.waiting"
	InstanceResumedEvent   EventType = "instance.resumed"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	InstanceID string    `json:"instance_id"`
	EventID    string    `json:"event_id,omitempty"`
}

// InstanceStarted is published when a new instance is created for a matched
// (definition, event) pair.
type InstanceStarted struct {
	BaseEvent

	InitialStepID string `json:"initial_step_id"`
}

func (e InstanceStarted) GetType() EventType { return InstanceStartedEvent }

// InstanceWaiting is published when an instance suspends on a human task.
type InstanceWaiting struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e InstanceWaiting) GetType() EventType { return InstanceWaitingEvent }

// InstanceResumed is published when a human task outcome re-activates a
// waiting instance.
type InstanceResumed struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e InstanceResumed) GetType() EventType { return InstanceResumedEvent }

type InstanceCompleted struct {
	BaseEvent

	FinalStepID string `json:"final_step_id"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type InstanceFailed struct {
	BaseEvent

	StepID string `json:"step_id"`
	Error  string `json:"error"`
}

func (e InstanceFailed) GetType() EventType { return InstanceFailedEvent }
