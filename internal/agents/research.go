package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/capability"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

// researchFreshness is how long a research note satisfies later requests
// on the same topic without re-querying the external sources.
const researchFreshness = time.Hour

// ResearchWorker gathers source material on a topic from multiple external
// search sources, synthesizes it into a research note, and reports the note
// id back to the router. It is the only writer of research notes.
type ResearchWorker struct {
	store       learning.Store
	sources     []capability.Searcher
	synthesizer capability.Generator
}

// NewResearchWorker creates a research worker over the given search sources
func NewResearchWorker(store learning.Store, sources []capability.Searcher, synthesizer capability.Generator) *ResearchWorker {
	return &ResearchWorker{store: store, sources: sources, synthesizer: synthesizer}
}

func (w *ResearchWorker) Agent() bus.Agent {
	return bus.AgentResearch
}

func (w *ResearchWorker) Handle(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	var task bus.TaskRequest
	if err := bus.DecodePayload(msg, &task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Topic) == "" {
		return nil, bus.ValidationError("research task has no topic")
	}

	// A fresh note on the same topic short-circuits the external sources.
	if note, err := w.store.LatestResearchNote(ctx, task.Topic); err != nil {
		return nil, err
	} else if note != nil && note.Fresh(time.Now().UTC()) {
		return w.resultFor(task, note, true)
	}

	findings, sources, err := w.gather(ctx, task.Topic)
	if err != nil {
		return nil, err
	}

	summary, err := w.synthesize(ctx, task.Topic, findings)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := &learning.ResearchNote{
		ID:         uuid.New().String(),
		Topic:      task.Topic,
		Summary:    summary,
		Sources:    sources,
		FreshUntil: now.Add(researchFreshness),
		CreatedAt:  now,
	}
	if err := w.store.InsertResearchNote(ctx, note); err != nil {
		return nil, err
	}

	return w.resultFor(task, note, false)
}

// gather queries every source concurrently. A single failed source is
// tolerated and logged; all sources failing is a capability error naming
// each one.
func (w *ResearchWorker) gather(ctx context.Context, topic string) (map[string]string, []string, error) {
	type finding struct {
		source string
		text   string
		err    error
	}

	results := make([]finding, len(w.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range w.sources {
		g.Go(func() error {
			text, err := source.Search(gctx, topic)
			results[i] = finding{source: source.Source(), text: text, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	findings := make(map[string]string)
	var succeeded []string
	var failed []string
	for _, f := range results {
		if f.err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", f.source, f.err))
			log.Printf(`{"level":"warn","message":"Research source failed","source":"%s","topic":"%s","error":"%v"}`, f.source, topic, f.err)
			continue
		}
		findings[f.source] = f.text
		succeeded = append(succeeded, f.source)
	}
	if len(succeeded) == 0 {
		return nil, nil, bus.CapabilityError("all research sources failed: %s", strings.Join(failed, "; "))
	}
	return findings, succeeded, nil
}

func (w *ResearchWorker) synthesize(ctx context.Context, topic string, findings map[string]string) (string, error) {
	contextData := make(map[string]interface{}, len(findings))
	for source, text := range findings {
		contextData[source] = text
	}
	prompt := fmt.Sprintf("Synthesize the source material into a concise research summary about %q for a tutoring system.", topic)

	raw, err := w.synthesizer.Generate(ctx, prompt, contextData)
	if err != nil {
		return "", err
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", bus.ValidationError("synthesis output is not valid JSON: %v", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", bus.ValidationError("synthesis output has no summary")
	}
	return out.Summary, nil
}

func (w *ResearchWorker) resultFor(task bus.TaskRequest, note *learning.ResearchNote, cached bool) ([]bus.MessageInput, error) {
	payload, err := bus.EncodePayload(bus.ResultReady{
		Intent:     task.Intent,
		UserID:     task.UserID,
		Topic:      task.Topic,
		EntityKind: "research_note",
		EntityID:   note.ID,
		Cached:     cached,
		Summary:    note.Summary,
	})
	if err != nil {
		return nil, err
	}
	return []bus.MessageInput{{
		From:    bus.AgentResearch,
		To:      bus.AgentRouter,
		Type:    bus.TypeResultReady,
		Payload: payload,
	}}, nil
}
