package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

func TestPoller_DrainsMailbox(t *testing.T) {
	busClient := bus.NewClient(bus.NewMemoryStore())
	handler := &echoHandler{agent: bus.AgentSequencing}
	runner := NewRunner(busClient, handler, nil)
	poller := NewPoller(busClient, runner).WithInterval(10 * time.Millisecond)

	first := dispatchTask(t, busClient, bus.AgentSequencing, bus.TaskRequest{
		Intent: "next", Topic: "algorithms", UserID: "user-1",
	})
	second := dispatchTask(t, busClient, bus.AgentSequencing, bus.TaskRequest{
		Intent: "next", Topic: "algorithms", UserID: "user-2",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		a, err := busClient.Get(context.Background(), first.ID)
		if err != nil || a.Status != bus.StatusDone {
			return false
		}
		b, err := busClient.Get(context.Background(), second.ID)
		return err == nil && b.Status == bus.StatusDone
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, handler.handled, 2)
}

func TestPoller_SkipsMessagesClaimedElsewhere(t *testing.T) {
	busClient := bus.NewClient(bus.NewMemoryStore())
	handler := &echoHandler{agent: bus.AgentSequencing}
	runner := NewRunner(busClient, handler, nil)
	poller := NewPoller(busClient, runner).WithInterval(10 * time.Millisecond)

	msg := dispatchTask(t, busClient, bus.AgentSequencing, bus.TaskRequest{
		Intent: "next", Topic: "algorithms", UserID: "user-1",
	})

	// Another worker wins the claim before our poller gets there.
	claimed, err := busClient.Claim(context.Background(), msg.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = poller.Run(ctx)

	assert.Empty(t, handler.handled, "a message claimed elsewhere must not be handled")
}
