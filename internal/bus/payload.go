package bus

import (
	"encoding/json"
)

// Typed payload shapes, one per message type. Messages carry an untyped map
// on the wire; these structs are the checked form used inside workers.

// TaskRequest is the payload of a task_request message dispatched by the
// router to a worker agent.
type TaskRequest struct {
	Intent        string   `json:"intent"`
	Topic         string   `json:"topic,omitempty"`
	TopicID       *string  `json:"topic_id,omitempty"`
	UserID        string   `json:"user_id"`
	Depth         string   `json:"depth,omitempty"`
	ContentItemID string   `json:"content_item_id,omitempty"`
	RawInput      string   `json:"raw_input,omitempty"`
	Answers       []string `json:"answers,omitempty"`
}

// ResultReady reports a finished worker task back to the router's mailbox.
// Business entities are referenced by identifier, never embedded wholesale.
type ResultReady struct {
	Intent     string `json:"intent,omitempty"`
	UserID     string `json:"user_id"`
	Topic      string `json:"topic,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Cached     bool   `json:"cached,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// GapSignal reports identified knowledge deficiencies from the assessment
// worker to the sequencing worker.
type GapSignal struct {
	Topic              string   `json:"topic"`
	Score              float64  `json:"score"`
	Outcome            string   `json:"outcome"`
	Gaps               []string `json:"gaps"`
	Recommendation     string   `json:"recommendation"`
	UserID             string   `json:"user_id"`
	AssessmentResultID string   `json:"assessment_result_id"`
}

// ProgressUpdate notifies the sequencing worker of a learner state change.
type ProgressUpdate struct {
	UserID  string `json:"user_id"`
	Topic   string `json:"topic,omitempty"`
	SkillID string `json:"skill_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Depth   string `json:"depth,omitempty"`
}

// EncodePayload converts a typed payload struct into the untyped map form
// stored on the bus.
func EncodePayload(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, ValidationError("encode payload: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ValidationError("encode payload: %v", err)
	}
	return out, nil
}

// DecodePayload validates msg's payload against the schema for its type and
// unmarshals it into out. Workers call this as their own validation step in
// addition to the dispatch-time check.
func DecodePayload(msg *Message, out interface{}) error {
	if err := ValidatePayload(msg.Type, msg.Payload); err != nil {
		return err
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return ValidationError("decode %s payload: %v", msg.Type, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ValidationError("decode %s payload: %v", msg.Type, err)
	}
	return nil
}
