// Package capability defines the external capabilities agents depend on:
// intent classification, web search, content generation, and gap analysis.
// Every capability is fallible and latent; structured output is validated
// before use, and validation failure is treated the same as a call failure.
package capability

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is the explicit unavailable marker a capability source may
// return instead of data. Callers decide whether one unavailable source is
// tolerable (see the research worker's multi-source policy).
var ErrUnavailable = errors.New("capability unavailable")

// Classification is the structured result of interpreting free text.
// It drives routing only and never re-enters the bus.
type Classification struct {
	Intent     string  `json:"intent"`
	Topic      string  `json:"topic,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Classifier interprets free text into a structured intent
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// Searcher searches a single external source for a query. Implementations
// return ErrUnavailable (possibly wrapped) when the source is down or
// explicitly reports no service.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
	Source() string
}

// Generator produces structured content from a prompt plus context data
type Generator interface {
	Generate(ctx context.Context, prompt string, contextData map[string]interface{}) (json.RawMessage, error)
}

// Analyzer identifies knowledge gaps from missed assessment questions
type Analyzer interface {
	AnalyzeGaps(ctx context.Context, topic string, missed []string) ([]string, error)
}
