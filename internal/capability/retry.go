package capability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

// RetryPolicy is a bounded retry-with-backoff applied around capability
// calls only. Worker state machines stay retry-free and deterministic;
// retry lives here, outside them.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy retries transient capability failures twice with a
// short linear backoff.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 2 * time.Second}

// Do runs fn up to Attempts times. Only transport-level capability failures
// are retried; validation failures and explicit unavailable markers are
// returned immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i) * p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !bus.IsKind(err, bus.KindCapability) || errors.Is(err, ErrUnavailable) {
			return err
		}
	}
	return err
}

// RetryingSearcher wraps a Searcher with a retry policy
type RetryingSearcher struct {
	Inner  Searcher
	Policy RetryPolicy
}

func (s *RetryingSearcher) Source() string {
	return s.Inner.Source()
}

func (s *RetryingSearcher) Search(ctx context.Context, query string) (string, error) {
	var text string
	err := s.Policy.Do(ctx, func() error {
		var innerErr error
		text, innerErr = s.Inner.Search(ctx, query)
		return innerErr
	})
	return text, err
}

// RetryingGenerator wraps a Generator with a retry policy
type RetryingGenerator struct {
	Inner  Generator
	Policy RetryPolicy
}

func (g *RetryingGenerator) Generate(ctx context.Context, prompt string, contextData map[string]interface{}) (json.RawMessage, error) {
	var content json.RawMessage
	err := g.Policy.Do(ctx, func() error {
		var innerErr error
		content, innerErr = g.Inner.Generate(ctx, prompt, contextData)
		return innerErr
	})
	return content, err
}

// RetryingAnalyzer wraps an Analyzer with a retry policy
type RetryingAnalyzer struct {
	Inner  Analyzer
	Policy RetryPolicy
}

func (a *RetryingAnalyzer) AnalyzeGaps(ctx context.Context, topic string, missed []string) ([]string, error) {
	var gaps []string
	err := a.Policy.Do(ctx, func() error {
		var innerErr error
		gaps, innerErr = a.Inner.AnalyzeGaps(ctx, topic, missed)
		return innerErr
	})
	return gaps, err
}
