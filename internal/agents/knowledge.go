package agents

import (
	"context"
	"fmt"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/capability"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

// KnowledgeSearcher is the local research source: it serves the most recent
// research note on a topic from the store, including stale ones. A stale
// note no longer satisfies a request on its own, but it still grounds the
// next synthesis alongside the external sources.
type KnowledgeSearcher struct {
	store learning.Store
}

// NewKnowledgeSearcher creates a searcher over previously stored research notes
func NewKnowledgeSearcher(store learning.Store) *KnowledgeSearcher {
	return &KnowledgeSearcher{store: store}
}

func (s *KnowledgeSearcher) Source() string { return "knowledge" }

func (s *KnowledgeSearcher) Search(ctx context.Context, query string) (string, error) {
	note, err := s.store.LatestResearchNote(ctx, query)
	if err != nil {
		return "", err
	}
	if note == nil {
		return "", fmt.Errorf("%w: no stored note for %q", capability.ErrUnavailable, query)
	}
	return note.Summary, nil
}
