// Package router turns free-text learner requests into classified intents
// and dispatches them to the owning worker agent over the bus. The router
// never executes learning work itself; it only classifies, dispatches, and
// records what it decided.
package router

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/capability"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/metrics"
)

// Recognized intents and the worker each is dispatched to. An intent
// missing from this table is answered directly without dispatching.
var intentTargets = map[string]bus.Agent{
	"research": bus.AgentResearch,
	"learn":    bus.AgentContent,
	"assess":   bus.AgentAssessment,
	"next":     bus.AgentSequencing,
}

// Input is one learner request to route
type Input struct {
	UserID        string   `json:"user_id"`
	Message       string   `json:"message"`
	ContentItemID string   `json:"content_item_id,omitempty"`
	Answers       []string `json:"answers,omitempty"`
}

// Result is what the router decided for one request
type Result struct {
	Intent              string  `json:"intent"`
	Topic               string  `json:"topic,omitempty"`
	Confidence          float64 `json:"confidence"`
	DispatchedTo        string  `json:"dispatched_to,omitempty"`
	DispatchedMessageID string  `json:"dispatched_message_id,omitempty"`
	Response            string  `json:"response"`
}

// Router classifies requests and dispatches task_request messages
type Router struct {
	classifier capability.Classifier
	busClient  *bus.Client
	store      learning.Store
	metrics    *metrics.MessageMetrics
	tracer     trace.Tracer
}

// New creates a router. metrics may be nil in tests.
func New(classifier capability.Classifier, busClient *bus.Client, store learning.Store, mm *metrics.MessageMetrics) *Router {
	return &Router{
		classifier: classifier,
		busClient:  busClient,
		store:      store,
		metrics:    mm,
		tracer:     otel.Tracer("router"),
	}
}

// Route classifies input, dispatches a task_request to the owning worker,
// and records the decision. Classification failures surface to the caller;
// audit-trail failures are logged and swallowed.
func (r *Router) Route(ctx context.Context, input Input) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "router.route")
	defer span.End()

	started := time.Now()

	if strings.TrimSpace(input.UserID) == "" {
		return nil, bus.ValidationError("user_id is required")
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, bus.ValidationError("message is required")
	}

	classification, err := r.classifier.Classify(ctx, input.Message)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("route.intent", classification.Intent),
		attribute.Float64("route.confidence", classification.Confidence),
	)

	result := &Result{
		Intent:     classification.Intent,
		Topic:      classification.Topic,
		Confidence: classification.Confidence,
	}

	target, recognized := intentTargets[classification.Intent]
	if !recognized {
		result.Intent = "unknown"
		result.Response = "I couldn't tell what you want to do. Ask me to research a topic, teach a lesson, quiz you, or suggest what to study next."
		r.record(ctx, input, result, started)
		return result, nil
	}

	// Topic lookup is soft: an unregistered topic still routes, workers
	// resolve or create the entity themselves.
	task := bus.TaskRequest{
		Intent:        classification.Intent,
		Topic:         classification.Topic,
		UserID:        input.UserID,
		RawInput:      input.Message,
		ContentItemID: input.ContentItemID,
		Answers:       input.Answers,
	}
	if classification.Topic != "" {
		topic, err := r.store.TopicByName(ctx, classification.Topic)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if topic != nil {
			task.TopicID = &topic.ID
		}
	}

	payload, err := bus.EncodePayload(task)
	if err != nil {
		return nil, err
	}
	msg, err := r.busClient.Dispatch(ctx, bus.MessageInput{
		From:    bus.AgentRouter,
		To:      target,
		Type:    bus.TypeTaskRequest,
		Payload: payload,
	})
	if err != nil {
		span.RecordError(err)
		// The audit trail still gets the attempt; only the row itself is
		// best effort.
		r.record(ctx, input, result, started)
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordDispatched(ctx, string(target), string(bus.TypeTaskRequest))
	}

	result.DispatchedTo = string(target)
	result.DispatchedMessageID = msg.ID
	result.Response = "Your request is queued with the " + string(target) + " agent."
	r.record(ctx, input, result, started)
	return result, nil
}

// record writes the audit row. Best effort only.
func (r *Router) record(ctx context.Context, input Input, result *Result, started time.Time) {
	decision := &learning.RouteDecision{
		ID:           uuid.New().String(),
		UserID:       input.UserID,
		RawInput:     input.Message,
		Intent:       result.Intent,
		Topic:        result.Topic,
		Confidence:   result.Confidence,
		DispatchedTo: result.DispatchedTo,
		MessageID:    result.DispatchedMessageID,
		ElapsedMS:    time.Since(started).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.InsertRouteDecision(ctx, decision); err != nil {
		log.Printf(`{"level":"warn","message":"Failed to record route decision","error":"%v","user_id":"%s"}`, err, input.UserID)
	}
}
