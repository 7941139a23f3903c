package bus

import (
	"context"
)

// Store is the durable message table. Implementations must guarantee that
// Claim is a single atomic conditional write: the pending check and the
// transition to processing are one operation, never a read followed by a
// write.
type Store interface {
	// Insert persists a new message. The caller has already assigned id,
	// status and timestamps.
	Insert(ctx context.Context, msg *Message) error

	// Get returns the message by id or a not-found error.
	Get(ctx context.Context, id string) (*Message, error)

	// ListPending returns up to limit pending messages addressed to agent,
	// oldest created first. Read-only.
	ListPending(ctx context.Context, agent Agent, limit int) ([]*Message, error)

	// Claim transitions pending -> processing only if the message is still
	// pending at update time. Returns (nil, nil) when another claimant won;
	// that is the expected outcome under contention, not an error.
	Claim(ctx context.Context, id string) (*Message, error)

	// MarkDone transitions processing -> done. A second call is a harmless
	// no-op.
	MarkDone(ctx context.Context, id string) error

	// MarkFailed transitions any non-terminal-done status to failed and
	// records the reason.
	MarkFailed(ctx context.Context, id string, reason string) error
}
