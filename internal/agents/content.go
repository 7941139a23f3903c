package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/capability"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

// lessonSchema is the contract the content generator must satisfy. Output
// failing it is a validation error, handled the same as a failed call.
const lessonSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"body": {"type": "string", "minLength": 1},
		"questions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"prompt": {"type": "string", "minLength": 1},
					"choices": {"type": "array", "minItems": 2, "items": {"type": "string"}},
					"correct_answer": {"type": "string", "minLength": 1}
				},
				"required": ["prompt", "choices", "correct_answer"],
				"additionalProperties": false
			}
		}
	},
	"required": ["title", "body", "questions"],
	"additionalProperties": false
}`

var compiledLessonSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(lessonSchema))
	if err != nil {
		panic(fmt.Sprintf("lesson schema: %v", err))
	}
	if err := compiler.AddResource("lesson.json", doc); err != nil {
		panic(fmt.Sprintf("lesson schema: %v", err))
	}
	compiledLessonSchema, err = compiler.Compile("lesson.json")
	if err != nil {
		panic(fmt.Sprintf("lesson schema: %v", err))
	}
}

type generatedLesson struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Questions []struct {
		Prompt        string   `json:"prompt"`
		Choices       []string `json:"choices"`
		CorrectAnswer string   `json:"correct_answer"`
	} `json:"questions"`
}

// ContentWorker generates a lesson with assessment questions for a topic at
// the requested depth, grounded on the latest research note when one
// exists. It is the only writer of content items and questions.
type ContentWorker struct {
	store     learning.Store
	generator capability.Generator
}

// NewContentWorker creates a content worker
func NewContentWorker(store learning.Store, generator capability.Generator) *ContentWorker {
	return &ContentWorker{store: store, generator: generator}
}

func (w *ContentWorker) Agent() bus.Agent {
	return bus.AgentContent
}

func (w *ContentWorker) Handle(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	var task bus.TaskRequest
	if err := bus.DecodePayload(msg, &task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Topic) == "" {
		return nil, bus.ValidationError("content task has no topic")
	}

	depth := learning.DepthBeginner
	if task.Depth != "" {
		depth = learning.Depth(task.Depth)
		if !depth.Valid() {
			return nil, bus.ValidationError("unknown depth %q", task.Depth)
		}
	}

	topic, err := w.resolveTopic(ctx, task)
	if err != nil {
		return nil, err
	}

	lesson, err := w.generate(ctx, task.Topic, depth)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &learning.ContentItem{
		ID:        uuid.New().String(),
		TopicID:   topic.ID,
		Depth:     depth,
		Title:     lesson.Title,
		Body:      lesson.Body,
		CreatedAt: now,
	}
	questions := make([]*learning.Question, len(lesson.Questions))
	for i, q := range lesson.Questions {
		questions[i] = &learning.Question{
			ID:            uuid.New().String(),
			ContentItemID: item.ID,
			Prompt:        q.Prompt,
			Choices:       q.Choices,
			CorrectAnswer: q.CorrectAnswer,
			Position:      i,
		}
	}
	if err := w.store.InsertContentItem(ctx, item, questions); err != nil {
		return nil, err
	}

	payload, err := bus.EncodePayload(bus.ResultReady{
		Intent:     task.Intent,
		UserID:     task.UserID,
		Topic:      task.Topic,
		EntityKind: "content_item",
		EntityID:   item.ID,
		Summary:    item.Title,
	})
	if err != nil {
		return nil, err
	}
	return []bus.MessageInput{{
		From:    bus.AgentContent,
		To:      bus.AgentRouter,
		Type:    bus.TypeResultReady,
		Payload: payload,
	}}, nil
}

// resolveTopic returns the registered topic, registering it on first use
func (w *ContentWorker) resolveTopic(ctx context.Context, task bus.TaskRequest) (*learning.Topic, error) {
	if task.TopicID != nil {
		return w.store.TopicByID(ctx, *task.TopicID)
	}
	topic, err := w.store.TopicByName(ctx, task.Topic)
	if err != nil {
		return nil, err
	}
	if topic != nil {
		return topic, nil
	}
	topic = &learning.Topic{
		ID:        uuid.New().String(),
		Name:      task.Topic,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.store.InsertTopic(ctx, topic); err != nil {
		return nil, err
	}
	return topic, nil
}

func (w *ContentWorker) generate(ctx context.Context, topic string, depth learning.Depth) (*generatedLesson, error) {
	contextData := map[string]interface{}{
		"topic": topic,
		"depth": string(depth),
	}
	if note, err := w.store.LatestResearchNote(ctx, topic); err != nil {
		return nil, err
	} else if note != nil {
		contextData["research_summary"] = note.Summary
	}
	prompt := fmt.Sprintf("Write a %s lesson about %q with multiple-choice questions.", depth, topic)

	raw, err := w.generator.Generate(ctx, prompt, contextData)
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, bus.ValidationError("lesson output is not valid JSON: %v", err)
	}
	if err := compiledLessonSchema.Validate(doc); err != nil {
		return nil, bus.ValidationError("lesson output rejected: %v", err)
	}

	var lesson generatedLesson
	if err := json.Unmarshal(raw, &lesson); err != nil {
		return nil, bus.ValidationError("lesson output rejected: %v", err)
	}
	return &lesson, nil
}
