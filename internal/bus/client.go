package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client is the only API through which agents communicate. It layers the
// enumeration and payload-schema checks on top of a Store; the store supplies
// atomicity, the client supplies the lifecycle contract. The bus never
// retries internally, callers apply their own policy.
type Client struct {
	store  Store
	tracer trace.Tracer
}

// NewClient creates a bus client on top of store
func NewClient(store Store) *Client {
	return &Client{
		store:  store,
		tracer: otel.Tracer("bus-client"),
	}
}

// Dispatch validates input and inserts a new pending message, returning the
// stored record with its generated id and timestamps.
func (c *Client) Dispatch(ctx context.Context, input MessageInput) (*Message, error) {
	ctx, span := c.tracer.Start(ctx, "bus.dispatch")
	defer span.End()

	if !input.From.Valid() {
		return nil, ValidationError("unknown sender agent %q", input.From)
	}
	if !input.To.Valid() {
		return nil, ValidationError("unknown recipient agent %q", input.To)
	}
	if !input.Type.Valid() {
		return nil, ValidationError("unknown message type %q", input.Type)
	}
	if err := ValidatePayload(input.Type, input.Payload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &Message{
		ID:        uuid.New().String(),
		From:      input.From,
		To:        input.To,
		Type:      input.Type,
		Payload:   input.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", string(msg.Type)),
		attribute.String("message.to", string(msg.To)),
	)

	if err := c.store.Insert(ctx, msg); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return msg, nil
}

// Poll returns up to limit pending messages addressed to agent, oldest
// first. Safe to call repeatedly and concurrently; has no side effect on
// status.
func (c *Client) Poll(ctx context.Context, agent Agent, limit int) ([]*Message, error) {
	if !agent.Valid() {
		return nil, ValidationError("unknown agent %q", agent)
	}
	return c.store.ListPending(ctx, agent, limit)
}

// Claim attempts the atomic pending -> processing transition. A nil message
// with a nil error means another claimant won the race.
func (c *Client) Claim(ctx context.Context, id string) (*Message, error) {
	ctx, span := c.tracer.Start(ctx, "bus.claim")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", id))

	msg, err := c.store.Claim(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("claim.won", msg != nil))
	return msg, nil
}

// Complete transitions processing -> done. Calling it twice is harmless;
// callers must only call it after a successful Claim.
func (c *Client) Complete(ctx context.Context, id string) error {
	return c.store.MarkDone(ctx, id)
}

// Fail records reason and transitions the message to failed. Callable
// regardless of current status; an already-terminal message is left alone.
func (c *Client) Fail(ctx context.Context, id string, reason string) error {
	return c.store.MarkFailed(ctx, id, reason)
}

// Get returns a message by id
func (c *Client) Get(ctx context.Context, id string) (*Message, error) {
	return c.store.Get(ctx, id)
}
