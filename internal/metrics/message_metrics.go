package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("message-metrics")

// MessageMetrics provides metrics collection for bus message processing
type MessageMetrics struct {
	dispatchedCounter       metric.Int64Counter
	completedCounter        metric.Int64Counter
	failedCounter           metric.Int64Counter
	claimsWonCounter        metric.Int64Counter
	claimsLostCounter       metric.Int64Counter
	handleDurationHistogram metric.Float64Histogram
	inFlightGauge           metric.Int64UpDownCounter
}

// NewMessageMetrics creates a new message metrics collector
func NewMessageMetrics() (*MessageMetrics, error) {
	dispatchedCounter, err := meter.Int64Counter(
		"agent_coordinator.messages.dispatched",
		metric.WithDescription("Total number of messages dispatched onto the bus"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	completedCounter, err := meter.Int64Counter(
		"agent_coordinator.messages.completed",
		metric.WithDescription("Total number of messages processed to done"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	failedCounter, err := meter.Int64Counter(
		"agent_coordinator.messages.failed",
		metric.WithDescription("Total number of messages that ended failed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	claimsWonCounter, err := meter.Int64Counter(
		"agent_coordinator.claims.won",
		metric.WithDescription("Claim attempts that won the pending->processing race"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		return nil, err
	}

	claimsLostCounter, err := meter.Int64Counter(
		"agent_coordinator.claims.lost",
		metric.WithDescription("Claim attempts that lost to another claimant"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		return nil, err
	}

	handleDurationHistogram, err := meter.Float64Histogram(
		"agent_coordinator.message.handle_duration",
		metric.WithDescription("Duration of worker message handling in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inFlightGauge, err := meter.Int64UpDownCounter(
		"agent_coordinator.messages.in_flight",
		metric.WithDescription("Number of messages currently claimed and processing"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return &MessageMetrics{
		dispatchedCounter:       dispatchedCounter,
		completedCounter:        completedCounter,
		failedCounter:           failedCounter,
		claimsWonCounter:        claimsWonCounter,
		claimsLostCounter:       claimsLostCounter,
		handleDurationHistogram: handleDurationHistogram,
		inFlightGauge:           inFlightGauge,
	}, nil
}

// RecordDispatched records a message accepted onto the bus
func (mm *MessageMetrics) RecordDispatched(ctx context.Context, agent, messageType string) {
	mm.dispatchedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent.id", agent),
			attribute.String("message.type", messageType),
		),
	)
}

// RecordClaimWon records a claim that won and entered processing
func (mm *MessageMetrics) RecordClaimWon(ctx context.Context, agent string) {
	mm.claimsWonCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent.id", agent)),
	)
	mm.inFlightGauge.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent.id", agent)),
	)
}

// RecordClaimLost records a claim that lost the race to another worker
func (mm *MessageMetrics) RecordClaimLost(ctx context.Context, agent string) {
	mm.claimsLostCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent.id", agent)),
	)
}

// RecordCompleted records a message processed to done
func (mm *MessageMetrics) RecordCompleted(ctx context.Context, agent, messageType string, duration time.Duration) {
	mm.completedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent.id", agent),
			attribute.String("message.type", messageType),
			attribute.String("status", "done"),
		),
	)
	mm.handleDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("agent.id", agent),
			attribute.String("message.type", messageType),
			attribute.String("status", "done"),
		),
	)
	mm.inFlightGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("agent.id", agent)),
	)
}

// RecordFailed records a message that ended failed
func (mm *MessageMetrics) RecordFailed(ctx context.Context, agent, messageType, errorKind string, duration time.Duration) {
	mm.failedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent.id", agent),
			attribute.String("message.type", messageType),
			attribute.String("status", "failed"),
			attribute.String("error.kind", errorKind),
		),
	)
	mm.handleDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("agent.id", agent),
			attribute.String("message.type", messageType),
			attribute.String("status", "failed"),
		),
	)
	mm.inFlightGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("agent.id", agent)),
	)
}
