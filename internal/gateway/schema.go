package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaRegistry lazily compiles one jsonschema.Schema per inbound frame
// type, the same structure as the teacher's wsSchemaRegistry
// (internal/gateway/ws_schema.go), but keyed on the frame's own "type"
// field instead of an RPC "method" name.
type schemaRegistry struct {
	once    sync.Once
	initErr error
	byType  map[string]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		defs := map[string]string{
			TypeStartRun:                   startRunSchema,
			TypeRunStartConfirmed:          startRunSchema,
			TypeUserInterrupt:              emptyObjectSchema,
			TypeUserDirectedMessage:        userDirectedMessageSchema,
			TypeHumanInputResponse:         humanInputResponseSchema,
			TypeTerminateRequest:           emptyObjectSchema,
			TypeComponentGenerationRequest: componentGenerationRequestSchema,
		}
		schemas.byType = make(map[string]*jsonschema.Schema, len(defs))
		for frameType, src := range defs {
			compiled, err := jsonschema.CompileString("gateway_"+frameType, src)
			if err != nil {
				schemas.initErr = fmt.Errorf("compiling schema for %s: %w", frameType, err)
				return
			}
			schemas.byType[frameType] = compiled
		}
	})
	return schemas.initErr
}

// validateInboundFrame checks raw against the schema registered for its
// "type" field. A frame with a missing type, or a type with no registered
// schema, is rejected with an error.
func validateInboundFrame(raw []byte) error {
	if err := initSchemas(); err != nil {
		return err
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	if probe.Type == "" {
		return fmt.Errorf("frame missing required \"type\" field")
	}
	schema, ok := schemas.byType[probe.Type]
	if !ok {
		return fmt.Errorf("unknown frame type %q", probe.Type)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("frame %q: %w", probe.Type, err)
	}
	return nil
}

const emptyObjectSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string" }
  },
  "additionalProperties": true
}`

const startRunSchema = `{
  "type": "object",
  "required": ["type", "session_id"],
  "properties": {
    "type": { "type": "string" },
    "session_id": { "type": "string", "minLength": 1 },
    "initial_topic": { "type": "string" },
    "company_name": { "type": "string" },
    "bill_name": { "type": "string" },
    "congress": { "type": "string" },
    "analysis_prompt": { "type": "string" },
    "trigger_threshold": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": true
}`

const userDirectedMessageSchema = `{
  "type": "object",
  "required": ["type", "content", "target_agent"],
  "properties": {
    "type": { "type": "string" },
    "content": { "type": "string", "minLength": 1 },
    "target_agent": { "type": "string", "minLength": 1 },
    "trim_count": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": true
}`

const humanInputResponseSchema = `{
  "type": "object",
  "required": ["type", "request_id", "user_input"],
  "properties": {
    "type": { "type": "string" },
    "request_id": { "type": "string", "minLength": 1 },
    "user_input": { "type": "string" }
  },
  "additionalProperties": true
}`

const componentGenerationRequestSchema = `{
  "type": "object",
  "required": ["type", "analysis_prompt"],
  "properties": {
    "type": { "type": "string" },
    "analysis_prompt": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`
