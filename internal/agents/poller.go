package agents

import (
	"context"
	"log"
	"time"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 10
)

// Poller drains one agent's mailbox: poll pending, attempt to claim each,
// process the claims that win. Multiple pollers for the same agent are safe,
// the claim resolves contention.
type Poller struct {
	busClient *bus.Client
	runner    *Runner
	agent     bus.Agent
	interval  time.Duration
	batchSize int
}

// NewPoller creates a poller driving runner's handler
func NewPoller(busClient *bus.Client, runner *Runner) *Poller {
	return &Poller{
		busClient: busClient,
		runner:    runner,
		agent:     runner.handler.Agent(),
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
	}
}

// WithInterval overrides the poll interval
func (p *Poller) WithInterval(interval time.Duration) *Poller {
	p.interval = interval
	return p
}

// Run polls until ctx is cancelled. Handler errors are already recorded on
// the failed message, so the loop logs and keeps going.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain processes one batch of pending messages
func (p *Poller) drain(ctx context.Context) {
	pending, err := p.busClient.Poll(ctx, p.agent, p.batchSize)
	if err != nil {
		log.Printf(`{"level":"error","message":"Poll failed","agent":"%s","error":"%v"}`, p.agent, err)
		return
	}
	for _, msg := range pending {
		if ctx.Err() != nil {
			return
		}
		claimed, err := p.runner.Process(ctx, msg.ID)
		if err != nil {
			log.Printf(`{"level":"error","message":"Message processing failed","agent":"%s","message_id":"%s","error":"%v"}`, p.agent, msg.ID, err)
			continue
		}
		if !claimed {
			// Another worker won this one; move on.
			continue
		}
	}
}
