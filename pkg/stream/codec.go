package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rbarros/cascata/pkg/models"
)

// Stream entry field names.
const (
	fieldEventID     = "event_id"
	fieldTemplateID  = "template_id"
	fieldOrgID       = "org_id"
	fieldData        = "data"
	fieldSubmittedAt = "submitted_at"
)

var errMissingField = errors.New("missing stream field")

// encodeEvent flattens an event into stream fields. The payload is carried
// as a JSON string so the stream stays inspectable with XRANGE.
func encodeEvent(event *models.Event) (map[string]any, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}

	return map[string]any{
		fieldEventID:     event.ID,
		fieldTemplateID:  event.TemplateID,
		fieldOrgID:       event.OrgID,
		fieldData:        string(data),
		fieldSubmittedAt: event.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func decodeEvent(values map[string]any) (*models.Event, error) {
	event := &models.Event{}

	var err error

	if event.ID, err = stringField(values, fieldEventID); err != nil {
		return nil, err
	}

	if event.TemplateID, err = stringField(values, fieldTemplateID); err != nil {
		return nil, err
	}

	if event.OrgID, err = stringField(values, fieldOrgID); err != nil {
		return nil, err
	}

	data, err := stringField(values, fieldData)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}

	submittedAt, err := stringField(values, fieldSubmittedAt)
	if err != nil {
		return nil, err
	}

	if event.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
		return nil, fmt.Errorf("decode submitted_at: %w", err)
	}

	return event, nil
}

func stringField(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", errMissingField, key)
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", errMissingField, key)
	}

	return s, nil
}
