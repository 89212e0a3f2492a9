package models

import "context"

type ActionResultStatus string

const (
	ActionSucceeded      ActionResultStatus = "succeeded"
	ActionFailed         ActionResultStatus = "failed"
	ActionNotImplemented ActionResultStatus = "not_implemented"
)

// ActionResult is the outcome of dispatching one action. NotImplemented is a
// deterministic success for registered-but-unimplemented action types so that
// transitions can still be authored against a "step ran" outcome.
type ActionResult struct {
	Status ActionResultStatus `json:"status"`
	Output map[string]any     `json:"output,omitempty"`
}

// ActionExecutor runs one action type against an instance context. Transport
// and dependency failures are reported through ActionResult.Status, not the
// error return; the error is reserved for context cancellation.
type ActionExecutor interface {
	Execute(ctx context.Context, action Action, executionContext map[string]any) (*ActionResult, error)
}
