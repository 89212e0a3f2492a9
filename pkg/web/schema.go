package web

// workflowSchema is the structural contract for POST /workflows bodies. It
// rejects malformed shapes before unmarshalling; graph-level rules (reachable
// steps, registered action types, known operators) are checked afterwards by
// Workflow.ValidateGraph.
const workflowSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "trigger", "initial_step_id", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 3},
    "active": {"type": "boolean"},
    "trigger": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "condition": {"$ref": "#/definitions/condition"}
      }
    },
    "initial_step_id": {"type": "string", "minLength": 1},
    "steps": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"$ref": "#/definitions/step"}
    }
  },
  "definitions": {
    "condition": {
      "type": "object",
      "properties": {
        "all": {"type": "array", "items": {"$ref": "#/definitions/condition"}},
        "any": {"type": "array", "items": {"$ref": "#/definitions/condition"}},
        "path": {"type": "string"},
        "op": {"type": "string"},
        "value": {}
      }
    },
    "step": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "name": {"type": "string"},
        "kind": {"type": "string", "enum": ["auto_action", "human_task"]},
        "actions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": {"type": "string", "minLength": 1},
              "config": {"type": "object"}
            }
          }
        },
        "transitions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["target_step_id"],
            "properties": {
              "condition": {"$ref": "#/definitions/condition"},
              "target_step_id": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    }
  }
}`
