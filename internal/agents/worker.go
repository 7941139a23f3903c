// Package agents implements the worker side of the coordinator: the four
// specialist agents (research, content, assessment, sequencing), the runner
// that drives a claimed message through a handler, and the poller that keeps
// each agent's mailbox drained.
package agents

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/metrics"
)

// Handler is one agent's message-processing logic. Handle returns the
// follow-up messages to dispatch on success; it must not dispatch them
// itself, the runner does that after the handler returns cleanly.
type Handler interface {
	Agent() bus.Agent
	Handle(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error)
}

// Runner drives claimed messages through a handler and applies the
// lifecycle contract: done on success, failed with a reason on error.
// It never retries; retry policy lives around the capability clients.
type Runner struct {
	busClient *bus.Client
	handler   Handler
	metrics   *metrics.MessageMetrics
	tracer    trace.Tracer
}

// NewRunner creates a runner for handler. metrics may be nil in tests.
func NewRunner(busClient *bus.Client, handler Handler, mm *metrics.MessageMetrics) *Runner {
	return &Runner{
		busClient: busClient,
		handler:   handler,
		metrics:   mm,
		tracer:    otel.Tracer("agent-runner"),
	}
}

// Process claims message id and, if the claim wins, runs the handler,
// dispatches its follow-ups, and completes the message. A lost claim
// returns (false, nil). Handler errors mark the message failed and are
// returned to the caller.
func (r *Runner) Process(ctx context.Context, id string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "agent.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", string(r.handler.Agent())),
		attribute.String("message.id", id),
	)

	msg, err := r.busClient.Claim(ctx, id)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if msg == nil {
		if r.metrics != nil {
			r.metrics.RecordClaimLost(ctx, string(r.handler.Agent()))
		}
		span.SetAttributes(attribute.Bool("claim.won", false))
		return false, nil
	}
	if r.metrics != nil {
		r.metrics.RecordClaimWon(ctx, string(r.handler.Agent()))
	}

	started := time.Now()
	followups, err := r.handler.Handle(ctx, msg)
	if err != nil {
		span.RecordError(err)
		reason := err.Error()
		if failErr := r.busClient.Fail(ctx, msg.ID, reason); failErr != nil {
			log.Printf(`{"level":"error","message":"Failed to mark message failed","error":"%v","message_id":"%s"}`, failErr, msg.ID)
		}
		if r.metrics != nil {
			r.metrics.RecordFailed(ctx, string(msg.To), string(msg.Type), string(errorKind(err)), time.Since(started))
		}
		return true, err
	}

	for _, followup := range followups {
		if _, dispatchErr := r.busClient.Dispatch(ctx, followup); dispatchErr != nil {
			span.RecordError(dispatchErr)
			reason := fmt.Sprintf("dispatch follow-up to %s: %v", followup.To, dispatchErr)
			if failErr := r.busClient.Fail(ctx, msg.ID, reason); failErr != nil {
				log.Printf(`{"level":"error","message":"Failed to mark message failed","error":"%v","message_id":"%s"}`, failErr, msg.ID)
			}
			if r.metrics != nil {
				r.metrics.RecordFailed(ctx, string(msg.To), string(msg.Type), string(errorKind(dispatchErr)), time.Since(started))
			}
			return true, dispatchErr
		}
		if r.metrics != nil {
			r.metrics.RecordDispatched(ctx, string(followup.To), string(followup.Type))
		}
	}

	if err := r.busClient.Complete(ctx, msg.ID); err != nil {
		span.RecordError(err)
		return true, err
	}
	if r.metrics != nil {
		r.metrics.RecordCompleted(ctx, string(msg.To), string(msg.Type), time.Since(started))
	}
	return true, nil
}

func errorKind(err error) bus.ErrorKind {
	for _, kind := range []bus.ErrorKind{bus.KindValidation, bus.KindNotFound, bus.KindCapability, bus.KindStore} {
		if bus.IsKind(err, kind) {
			return kind
		}
	}
	return "internal"
}
