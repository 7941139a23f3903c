package bus

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload schemas, keyed by message type. Payloads are validated against
// these on dispatch and again by the consuming worker.
const (
	taskRequestSchema = `{
		"type": "object",
		"properties": {
			"intent":          {"type": "string", "minLength": 1},
			"topic":           {"type": "string"},
			"topic_id":        {"type": ["string", "null"]},
			"user_id":         {"type": "string", "minLength": 1},
			"depth":           {"type": "string", "enum": ["beginner", "intermediate", "advanced"]},
			"content_item_id": {"type": "string"},
			"raw_input":       {"type": "string"},
			"answers":         {"type": "array", "items": {"type": "string"}}
		},
		"required": ["intent", "user_id"],
		"additionalProperties": false
	}`

	resultReadySchema = `{
		"type": "object",
		"properties": {
			"intent":    {"type": "string"},
			"user_id":   {"type": "string", "minLength": 1},
			"topic":     {"type": "string"},
			"entity_kind": {"type": "string", "minLength": 1},
			"entity_id": {"type": "string"},
			"cached":    {"type": "boolean"},
			"summary":   {"type": "string"}
		},
		"required": ["user_id", "entity_kind", "entity_id"],
		"additionalProperties": false
	}`

	gapSignalSchema = `{
		"type": "object",
		"properties": {
			"topic":                {"type": "string", "minLength": 1},
			"score":                {"type": "number", "minimum": 0, "maximum": 1},
			"outcome":              {"type": "string", "enum": ["PASS", "PARTIAL", "FAIL"]},
			"gaps":                 {"type": "array", "items": {"type": "string"}},
			"recommendation":       {"type": "string", "enum": ["advance", "needs_review", "needs_remediation"]},
			"user_id":              {"type": "string", "minLength": 1},
			"assessment_result_id": {"type": "string", "minLength": 1}
		},
		"required": ["topic", "score", "outcome", "gaps", "recommendation", "user_id", "assessment_result_id"],
		"additionalProperties": false
	}`

	progressUpdateSchema = `{
		"type": "object",
		"properties": {
			"user_id":  {"type": "string", "minLength": 1},
			"topic":    {"type": "string"},
			"skill_id": {"type": "string"},
			"status":   {"type": "string"},
			"depth":    {"type": "string", "enum": ["beginner", "intermediate", "advanced"]}
		},
		"required": ["user_id"],
		"additionalProperties": false
	}`
)

var payloadSchemas map[MessageType]*jsonschema.Schema

func init() {
	raw := map[MessageType]string{
		TypeTaskRequest:    taskRequestSchema,
		TypeResultReady:    resultReadySchema,
		TypeGapSignal:      gapSignalSchema,
		TypeProgressUpdate: progressUpdateSchema,
	}

	payloadSchemas = make(map[MessageType]*jsonschema.Schema, len(raw))
	for typ, src := range raw {
		compiler := jsonschema.NewCompiler()
		name := fmt.Sprintf("%s.json", typ)
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			panic(fmt.Sprintf("bus: bad schema for %s: %v", typ, err))
		}
		if err := compiler.AddResource(name, doc); err != nil {
			panic(fmt.Sprintf("bus: bad schema for %s: %v", typ, err))
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("bus: bad schema for %s: %v", typ, err))
		}
		payloadSchemas[typ] = schema
	}
}

// ValidatePayload checks payload against the schema registered for typ.
// Invalid payloads are a hard processing error, never coerced.
func ValidatePayload(typ MessageType, payload map[string]interface{}) error {
	schema, ok := payloadSchemas[typ]
	if !ok {
		return ValidationError("no payload schema registered for message type %q", typ)
	}
	// jsonschema validates plain-JSON values; map[string]interface{} from an
	// unmarshalled document satisfies that directly.
	if err := schema.Validate(normalize(payload)); err != nil {
		return ValidationError("payload does not match %s schema: %v", typ, err)
	}
	return nil
}

// normalize rewrites Go-native values into the plain JSON value forms the
// schema validator expects (e.g. []string into []interface{}).
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
