package web

// SubmitRequest is the body of POST /submit. Data carries the submitted form
// fields; its shape is template-specific and passed through untouched.
type SubmitRequest struct {
	TemplateID string         `json:"template_id" validate:"required"`
	OrgID      string         `json:"org_id"`
	Data       map[string]any `json:"data"        validate:"required"`
}

// SubmitResponse acknowledges that the submission was appended to the log.
// Processing happens asynchronously in the workers.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	MessageID    string `json:"message_id"`
	Status       string `json:"status"`
}

type resumeRequest struct {
	Outcome map[string]any `json:"outcome" validate:"required"`
}
