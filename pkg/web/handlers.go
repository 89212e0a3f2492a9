// Package web provides the HTTP handlers for submissions, workflow
// definitions, and instances.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rbarros/cascata/pkg/models"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/registry"
	"github.com/rbarros/cascata/pkg/stream"
	"github.com/rbarros/cascata/pkg/workflow"
	"github.com/xeipuuv/gojsonschema"
)

type APIHandlers struct {
	persistence persistence.Persistence
	log         stream.EventLog
	engine      *workflow.Engine
	validator   *validator.Validate
	registry    *registry.Registry
	logger      *slog.Logger
	schema      *gojsonschema.Schema
}

func NewAPIHandlers(
	p persistence.Persistence,
	log stream.EventLog,
	engine *workflow.Engine,
	v *validator.Validate,
	r *registry.Registry,
	logger *slog.Logger,
) (*APIHandlers, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowSchema))
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &APIHandlers{
		persistence: p,
		log:         log,
		engine:      engine,
		validator:   v,
		registry:    r,
		logger:      logger.With("module", "web"),
		schema:      schema,
	}, nil
}

// Submit accepts a form submission and appends it to the log. It returns 202
// immediately; matching and instance execution happen in the workers.
func (h *APIHandlers) Submit(c fiber.Ctx) error {
	var req SubmitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := &models.Event{
		ID:          uuid.New().String(),
		TemplateID:  req.TemplateID,
		OrgID:       req.OrgID,
		Data:        req.Data,
		SubmittedAt: time.Now().UTC(),
	}

	messageID, err := h.log.Publish(c.Context(), event)
	if err != nil {
		h.logger.Error("Failed to append submission to log", "error", err)

		return internalError(c, err)
	}

	h.logger.Info("Accepted submission",
		"submission_id", event.ID, "template_id", event.TemplateID, "message_id", messageID)

	return c.Status(fiber.StatusAccepted).JSON(SubmitResponse{
		SubmissionID: event.ID,
		MessageID:    messageID,
		Status:       "submitted",
	})
}

// CreateWorkflow validates and stores a workflow definition. Validation is
// layered: JSON schema for shape, struct tags for field rules, ValidateGraph
// for graph integrity against the registered action types.
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	body := c.Body()

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return badRequest(c, strings.Join(details, "; "))
	}

	var def models.Workflow
	if err := json.Unmarshal(body, &def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(def); err != nil {
		return badRequest(c, err.Error())
	}

	if err := def.ValidateGraph(h.registry.IsRegistered); err != nil {
		return badRequest(c, err.Error())
	}

	// Definitions are active unless the body says otherwise.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err == nil {
		if _, ok := raw["active"]; !ok {
			def.Active = true
		}
	}

	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := h.persistence.Workflows().Save(c.Context(), &def); err != nil {
		return internalError(c, err)
	}

	h.logger.Info("Created workflow definition", "workflow_id", def.ID, "name", def.Name)

	return c.Status(fiber.StatusCreated).JSON(def)
}

// GetWorkflows lists the active definitions, the set the matcher runs
// against. Inactive definitions stay reachable by ID.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	definitions, err := h.persistence.Workflows().Active(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": definitions,
		"count":     len(definitions),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.persistence.Workflows().ByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.persistence.Instances().ByID(c.Context(), id)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "Instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(instance)
}

// ResumeInstance supplies a human task outcome to a waiting instance. A 409
// means the instance is not waiting: already resumed, completed, or failed.
func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req resumeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Resume(c.Context(), id, req.Outcome)
	if err != nil {
		switch {
		case persistence.IsInstanceNotFound(err):
			return notFound(c, "Instance not found")
		case errors.Is(err, workflow.ErrInvalidState):
			return conflict(c, err.Error())
		default:
			return internalError(c, err)
		}
	}

	return c.JSON(instance)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Cascata API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Cascata API is unhealthy: " + err.Error()
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
