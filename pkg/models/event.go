// Package models defines the core domain models for event-driven workflow automation.
package models

import "time"

// Event is the immutable record consumed from the event log. It is produced
// by the intake API when a submission is accepted and never mutated afterwards.
type Event struct {
	ID          string         `json:"event_id"`
	TemplateID  string         `json:"template_id" validate:"required"`
	OrgID       string         `json:"org_id"`
	Data        map[string]any `json:"data"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// MatchContext builds the namespace that trigger conditions and the initial
// instance context resolve paths against: the event fields at the top level
// plus the raw submission data under "data".
func (e *Event) MatchContext() map[string]any {
	return map[string]any{
		"template_id":   e.TemplateID,
		"submission_id": e.ID,
		"org_id":        e.OrgID,
		"data":          e.Data,
	}
}
