package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageMetrics(t *testing.T) {
	mm, err := NewMessageMetrics()
	require.NoError(t, err)
	require.NotNil(t, mm)

	assert.NotNil(t, mm.dispatchedCounter)
	assert.NotNil(t, mm.completedCounter)
	assert.NotNil(t, mm.failedCounter)
	assert.NotNil(t, mm.claimsWonCounter)
	assert.NotNil(t, mm.claimsLostCounter)
	assert.NotNil(t, mm.handleDurationHistogram)
	assert.NotNil(t, mm.inFlightGauge)
}

func TestMessageMetrics_Record(t *testing.T) {
	mm, err := NewMessageMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records dispatched without panicking", func(t *testing.T) {
		assert.NotPanics(t, func() {
			mm.RecordDispatched(ctx, "research", "task_request")
		})
	})

	t.Run("records claim outcomes without panicking", func(t *testing.T) {
		assert.NotPanics(t, func() {
			mm.RecordClaimWon(ctx, "research")
			mm.RecordClaimLost(ctx, "research")
		})
	})

	t.Run("records completion without panicking", func(t *testing.T) {
		assert.NotPanics(t, func() {
			mm.RecordCompleted(ctx, "research", "task_request", 150*time.Millisecond)
		})
	})

	t.Run("records failure without panicking", func(t *testing.T) {
		assert.NotPanics(t, func() {
			mm.RecordFailed(ctx, "assessment", "task_request", "capability", 2*time.Second)
		})
	})
}

func TestMessageMetrics_ConcurrentRecording(t *testing.T) {
	mm, err := NewMessageMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mm.RecordDispatched(ctx, "content", "task_request")
			mm.RecordClaimWon(ctx, "content")
			mm.RecordCompleted(ctx, "content", "task_request", 10*time.Millisecond)
		}()
	}

	assert.NotPanics(t, wg.Wait)
}
